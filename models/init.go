package models

import (
	"fmt"
	"log/slog"
	"sync"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/asdf"
	"github.com/reoring/datamodels/converter"
	"github.com/reoring/datamodels/internal/memo"
	"github.com/reoring/datamodels/ndarray"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
	"github.com/reoring/datamodels/stnode"
	"github.com/reoring/datamodels/timeval"
)

var loadManifest = sync.OnceValues(func() (*schema.Manifest, error) {
	return schema.LoadManifest(files, "manifest.yaml")
})

// Manifest returns the embedded manifest.
func Manifest() (*schema.Manifest, error) { return loadManifest() }

// Register adds every class, along with the opaque array and time types, to
// reg. Failures are *datamodels.SchemaRegistrationError; an incomplete class
// wraps its *datamodels.CapabilityError.
func Register(reg *registry.Registry) error {
	if err := registerClasses(reg, Classes()); err != nil {
		return err
	}
	for _, e := range []registry.Registrable{ndarray.Type{}, timeval.Type{}} {
		if err := reg.Register(e); err != nil {
			return err
		}
	}
	return nil
}

func registerClasses(reg *registry.Registry, classes []*stnode.Class) error {
	for _, c := range classes {
		if err := reg.Register(c); err != nil {
			return err
		}
		if err := c.Check(); err != nil {
			return &dm.SchemaRegistrationError{Class: c.Name(), Reason: "incomplete class", Err: err}
		}
	}
	return nil
}

// Load registers the models into reg and verifies the result against the
// manifest. It does not seal reg.
func Load(reg *registry.Registry) error {
	if err := Register(reg); err != nil {
		return err
	}
	m, err := Manifest()
	if err != nil {
		return err
	}
	if err := reg.Verify(m.KnownURIs()); err != nil {
		return fmt.Errorf("models: %w", err)
	}
	dm.Logger().Debug("models loaded", slog.String("manifest", m.ID), slog.Int("classes", len(Classes())))
	return nil
}

// Init populates and seals the process registry. Only the first call does any
// work. A registration or completeness failure is fatal: Init panics rather
// than continue with a partial registry.
func Init() {
	if err := registry.Init(Load); err != nil {
		panic(err)
	}
}

type engineKey struct {
	reg  *registry.Registry
	lazy bool
}

var engines memo.Map[engineKey, *asdf.Engine]

// NewEngine builds an engine converting model nodes, arrays and times
// registered in reg.
func NewEngine(reg *registry.Registry, opts ...asdf.Option) (*asdf.Engine, error) {
	base := []asdf.Option{asdf.WithConverters(converter.NewNodeConverter(reg), timeval.Converter{}, ndarray.Converter{})}
	return asdf.NewEngine(append(base, opts...)...)
}

// Engine initializes the models and returns the shared engine for the process
// registry.
func Engine() *asdf.Engine { return processEngine(false) }

// LazyEngine is like Engine but defers nested tagged subtrees until they are
// accessed.
func LazyEngine() *asdf.Engine { return processEngine(true) }

func processEngine(lazy bool) *asdf.Engine {
	Init()
	reg := registry.Default()
	e, err := engines.Get(engineKey{reg: reg, lazy: lazy}, func() (*asdf.Engine, error) {
		return NewEngine(reg, asdf.WithLazyTree(lazy))
	})
	if err != nil {
		panic(err)
	}
	return e
}
