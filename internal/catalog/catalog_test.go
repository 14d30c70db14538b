package catalog

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testForecastTime int64 = 1714143600000

func gfs(parameter, level string, forecastTime int64, uuid string) domain.ProductAnnouncement {
	return domain.ProductAnnouncement{
		Type:         domain.TypeForecastModel,
		ModelName:    "GFS",
		Parameter:    parameter,
		Level:        level,
		ForecastTime: forecastTime,
		UUID:         uuid,
	}
}

func newTestCatalog(now time.Time) *Catalog {
	c := New()
	c.now = func() time.Time { return now }
	return c
}

func TestUpsert_ReplacesSameIdentity(t *testing.T) {
	c := New()

	_, inserted, err := c.Upsert(gfs("Pressure", "600m AGL", testForecastTime, "a"))
	require.NoError(t, err)
	assert.True(t, inserted)

	e, inserted, err := c.Upsert(gfs("Pressure", "600m AGL", testForecastTime, "b"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "b", e.UUID)

	require.Equal(t, 1, c.Len())
	assert.Equal(t, "b", c.Entries()[0].UUID)
}

func TestUpsert_ReplaceUpdatesMutableFields(t *testing.T) {
	first := time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)
	c := newTestCatalog(first)

	kml := domain.ProductAnnouncement{Type: domain.TypeKML, Name: "warnings", File: "warnings-1.kml", UUID: "a"}
	_, _, err := c.Upsert(kml)
	require.NoError(t, err)

	later := first.Add(time.Minute)
	c.now = func() time.Time { return later }
	kml.File = "warnings-2.kml"
	kml.UUID = "b"
	_, inserted, err := c.Upsert(kml)
	require.NoError(t, err)
	assert.False(t, inserted)

	e, ok := c.Get(kml.Identity())
	require.True(t, ok)
	assert.Equal(t, "warnings-2.kml", e.File)
	assert.Equal(t, "b", e.UUID)
	assert.Equal(t, later, e.ReceivedAt)
	assert.Equal(t, "warnings", e.Name)
}

func TestUpsert_RejectsMalformed(t *testing.T) {
	c := New()

	_, _, err := c.Upsert(domain.ProductAnnouncement{Type: domain.TypeForecastModel, ModelName: "GFS"})
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, 0, c.Len())

	_, _, err = c.Upsert(domain.ProductAnnouncement{Type: domain.TypeKML, Name: "x", Action: domain.ActionRemove})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, 0, c.Len())
}

// One entry per distinct identity, holding the most recently upserted uuid.
func TestUpsert_OneEntryPerIdentity(t *testing.T) {
	c := New()
	r := rand.New(rand.NewSource(7))

	params := []string{"Temperature", "Pressure", "Wind"}
	levels := []string{"sfc", "500mb"}
	latest := make(map[string]string)

	for i := 0; i < 500; i++ {
		a := gfs(params[r.Intn(len(params))], levels[r.Intn(len(levels))], testForecastTime+int64(r.Intn(4))*3600000, fmt.Sprintf("u-%d", i))
		_, _, err := c.Upsert(a)
		require.NoError(t, err)
		latest[a.Identity().String()] = a.UUID
	}

	require.Equal(t, len(latest), c.Len())
	for _, e := range c.Entries() {
		assert.Equal(t, latest[e.Identity().String()], e.UUID)
	}
}

func TestRemoveMatching(t *testing.T) {
	c := New()
	for _, a := range []domain.ProductAnnouncement{
		gfs("Temperature", "sfc", testForecastTime, "1"),
		gfs("Temperature", "sfc", testForecastTime+3600000, "2"),
		gfs("Temperature", "500mb", testForecastTime, "3"),
		gfs("Pressure", "sfc", testForecastTime, "4"),
	} {
		_, _, err := c.Upsert(a)
		require.NoError(t, err)
	}

	t.Run("empty key removes nothing", func(t *testing.T) {
		assert.Empty(t, c.RemoveMatching(PartialKey{}))
		assert.Equal(t, 4, c.Len())
	})

	t.Run("matches every set field", func(t *testing.T) {
		removed := c.RemoveMatching(PartialKey{Parameter: "Temperature", Level: "sfc"})
		require.Len(t, removed, 2)
		assert.Equal(t, "1", removed[0].UUID)
		assert.Equal(t, "2", removed[1].UUID)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("time field", func(t *testing.T) {
		ft := testForecastTime
		removed := c.RemoveMatching(PartialKey{ModelName: "GFS", ForecastTime: &ft, Parameter: "Pressure"})
		require.Len(t, removed, 1)
		assert.Equal(t, "4", removed[0].UUID)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, c.RemoveMatching(PartialKey{ModelName: "NAM"}))
		assert.Equal(t, 1, c.Len())
	})
}

func TestKeyFromAnnouncement(t *testing.T) {
	k := KeyFromAnnouncement(domain.ProductAnnouncement{Type: domain.TypeForecastModel, ModelName: "GFS", Action: domain.ActionRemove})
	assert.Nil(t, k.ForecastTime)
	assert.Nil(t, k.ModelTime)
	assert.True(t, k.Matches(gfs("Wind", "10m", testForecastTime, "x").Identity()))

	k = KeyFromAnnouncement(gfs("Wind", "10m", testForecastTime, "x"))
	require.NotNil(t, k.ForecastTime)
	assert.Equal(t, testForecastTime, *k.ForecastTime)
	assert.False(t, k.Matches(gfs("Wind", "10m", testForecastTime+1, "x").Identity()))
}

func TestFindAndReset(t *testing.T) {
	c := New()
	_, _, err := c.Upsert(gfs("Temperature", "sfc", testForecastTime, "1"))
	require.NoError(t, err)
	_, _, err = c.Upsert(domain.ProductAnnouncement{Type: domain.TypeKML, Name: "warnings"})
	require.NoError(t, err)

	assert.Len(t, c.Find(PartialKey{Type: domain.TypeKML}), 1)
	assert.Len(t, c.Find(PartialKey{}), 2)

	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Entries())
}
