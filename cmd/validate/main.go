// Command validate checks the mock announcement fixture and the overlay files
// it references. It verifies that every element decodes and validates, that
// uuids and identities are consistent, that displayable products bind to
// layers, and that every referenced overlay file parses.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -announcements data/mock/announcements.json \
//	  -overlay-dir data/overlays
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-layers/internal/catalog"
	"github.com/couchcryptid/storm-data-layers/internal/domain"
	"github.com/couchcryptid/storm-data-layers/internal/overlay"
	"github.com/couchcryptid/storm-data-layers/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	annPath := flag.String("announcements", "data/mock/announcements.json", "path to the announcement fixture")
	overlayDir := flag.String("overlay-dir", "data/overlays", "directory holding overlay files")
	flag.Parse()

	if code := run(*annPath, *overlayDir); code != 0 {
		os.Exit(code)
	}
}

func run(annPath, overlayDir string) int {
	// Fixed clock matching genmock.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	fmt.Println("=== Layer Fixture Validation ===")
	fmt.Println()

	data, err := os.ReadFile(annPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read announcements: %v\n", err)
		return 1
	}

	anns, decodeErrs := domain.DecodeAnnouncements(data)
	binder := pipeline.NewBinder(domain.DefaultLegends, nil)

	phases := []*phase{
		validateDecoding(anns, decodeErrs),
		validateIdentities(anns),
		validateBindings(anns, binder),
		validateOverlays(anns, binder, overlayDir),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Announcements: %d decoded, %d rejected\n", len(anns), len(decodeErrs))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: every element decodes and validates ──

func validateDecoding(anns []domain.ProductAnnouncement, decodeErrs []error) *phase {
	p := &phase{name: "Phase 1: Decode & validate"}
	fmt.Println("Phase 1: Decode & validate...")

	for _, err := range decodeErrs {
		p.errorf("decode: %v", err)
	}
	for i := range anns {
		if anns[i].IsRemoval() {
			p.errorf("[%d] fixture must not contain removals", i)
		}
	}
	if len(anns) == 0 {
		p.errorf("fixture is empty")
	}
	return p
}

// ── Phase 2: uuid and identity consistency ──

func validateIdentities(anns []domain.ProductAnnouncement) *phase {
	p := &phase{name: "Phase 2: Identities"}
	fmt.Println("Phase 2: Identities...")

	cat := catalog.New()
	uuids := make(map[string]int, len(anns))
	for i := range anns {
		a := anns[i]
		want := uuid.NewSHA1(uuid.NameSpaceURL, []byte(a.Identity().String())).String()
		if a.UUID != want {
			p.errorf("[%d] %s: uuid=%q, want %q", i, a.Identity(), a.UUID, want)
		}
		if prev, ok := uuids[a.UUID]; ok {
			p.errorf("[%d] uuid %s already used by [%d]", i, a.UUID, prev)
		}
		uuids[a.UUID] = i

		_, inserted, err := cat.Upsert(a)
		if err != nil {
			continue
		}
		if !inserted {
			p.errorf("[%d] %s: duplicate identity", i, a.Identity())
		}
	}
	return p
}

// ── Phase 3: displayable products bind to layers ──

func validateBindings(anns []domain.ProductAnnouncement, binder *pipeline.Binder) *phase {
	p := &phase{name: "Phase 3: Layer bindings"}
	fmt.Println("Phase 3: Layer bindings...")

	frames := map[string]map[int64]bool{}
	kinds := map[pipeline.BindingKind]int{}
	for i := range anns {
		a := anns[i]
		b, ok := binder.Bind(a)
		if !ok {
			if a.Type == domain.TypeForecastModel {
				p.errorf("[%d] forecast parameter %q has no legend", i, a.Parameter)
			}
			continue
		}
		if b.Name == "" {
			p.errorf("[%d] %s: empty layer name", i, b.LayerID)
		}
		if frames[b.LayerID] == nil {
			frames[b.LayerID] = map[int64]bool{}
			kinds[b.Kind]++
		}
		frames[b.LayerID][a.ForecastTime] = true
	}

	ids := make([]string, 0, len(frames))
	for id := range frames {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %-48s frames=%d\n", id, len(frames[id]))
	}
	fmt.Printf("  layers: forecast=%d overlay=%d plain=%d\n",
		kinds[pipeline.BindForecast], kinds[pipeline.BindOverlay], kinds[pipeline.BindPlain])
	if len(frames) == 0 {
		p.errorf("no product binds to a layer")
	}
	return p
}

// ── Phase 4: overlay files parse ──

func validateOverlays(anns []domain.ProductAnnouncement, binder *pipeline.Binder, dir string) *phase {
	p := &phase{name: "Phase 4: Overlay files"}
	fmt.Println("Phase 4: Overlay files...")

	for i := range anns {
		b, ok := binder.Bind(anns[i])
		if !ok || b.Kind != pipeline.BindOverlay {
			continue
		}
		format, _ := overlay.FormatOf(b.File)
		data, err := os.ReadFile(filepath.Join(dir, b.File))
		if err != nil {
			p.errorf("[%d] %s: %v", i, b.File, err)
			continue
		}
		doc, err := overlay.Parse(format, data)
		if err != nil {
			p.errorf("[%d] %s: %v", i, b.File, err)
			continue
		}
		if len(doc.Entities) == 0 {
			p.errorf("[%d] %s: no entities", i, b.File)
			continue
		}
		if _, ok := doc.Bound(); !ok {
			p.errorf("[%d] %s: no geometry", i, b.File)
		}
		fmt.Printf("  %-20s format=%s entities=%d\n", b.File, format, len(doc.Entities))
	}
	return p
}
