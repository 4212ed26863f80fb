package opctx

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Configuration keys, read once at factory construction. Unknown environment
// keys are ignored; malformed values fail construction.
const (
	KeyDefaultTimeoutNanos = "execContext.defaultTimeoutNanos"
	KeyFactoryClass        = "execContext.factoryClass"
	KeyFactoryWrapperClass = "execContext.factoryWrapperClass"
	KeyAttacherClass       = "execContext.tlAttacherClass"
)

// Settings is the parsed, immutable configuration view.
type Settings struct {
	DefaultTimeout time.Duration
	Factory        string
	FactoryWrapper string
	Attacher       string
}

func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

// LoadSettings parses configuration through the supplied lookup, which is
// os.LookupEnv in production and a map lookup in tests.
func LoadSettings(lookup func(key string) (string, bool)) (Settings, error) {
	settings := Settings{DefaultTimeout: DefaultTimeout}
	if v, found := lookup(KeyDefaultTimeoutNanos); found {
		nanos, err := strconv.ParseInt(v, 10, 64)
		if err != nil || nanos <= 0 {
			return Settings{}, errors.Wrapf(ErrConfig, "%v must be a positive integer, got %q", KeyDefaultTimeoutNanos, v)
		}
		settings.DefaultTimeout = time.Duration(nanos)
	}
	if v, found := lookup(KeyFactoryClass); found {
		settings.Factory = v
	}
	if v, found := lookup(KeyFactoryWrapperClass); found {
		settings.FactoryWrapper = v
	}
	if v, found := lookup(KeyAttacherClass); found {
		settings.Attacher = v
	}
	return settings, nil
}

// Dynamic class loading is replaced by registries of pre-linked constructors
// selected by name. Registration normally happens from init functions;
// resolution happens once per factory.

var registryMu sync.Mutex
var factoryRegistry = map[string]func() ContextFactory{
	"default": DefaultContextFactory,
}
var wrapperRegistry = map[string]func() FactoryWrapper{
	"counting": func() FactoryWrapper { return &CountingFactory{} },
}
var attacherRegistry = map[string]func(factory *Factory) Attacher{
	"stack": NewStackAttacher,
	"debug": func(factory *Factory) Attacher {
		return debugAttacher{inner: NewStackAttacher(factory), logger: factory.logger}
	},
}

// RegisterFactory makes an alternate ContextFactory selectable by name.
func RegisterFactory(name string, constructor func() ContextFactory) {
	registryMu.Lock()
	factoryRegistry[name] = constructor
	registryMu.Unlock()
}

// RegisterFactoryWrapper makes a factory decorator selectable by name.
func RegisterFactoryWrapper(name string, constructor func() FactoryWrapper) {
	registryMu.Lock()
	wrapperRegistry[name] = constructor
	registryMu.Unlock()
}

// RegisterAttacher makes an alternate attachment scheme selectable by name.
func RegisterAttacher(name string, constructor func(factory *Factory) Attacher) {
	registryMu.Lock()
	attacherRegistry[name] = constructor
	registryMu.Unlock()
}

func resolveFactory(name string) (ContextFactory, error) {
	if name == "" {
		name = "default"
	}
	registryMu.Lock()
	constructor, found := factoryRegistry[name]
	registryMu.Unlock()
	if !found {
		return nil, errors.Wrapf(ErrConfig, "unknown context factory %q", name)
	}
	return constructor(), nil
}

func resolveWrapper(name string) (FactoryWrapper, error) {
	if name == "" {
		return nil, nil
	}
	registryMu.Lock()
	constructor, found := wrapperRegistry[name]
	registryMu.Unlock()
	if !found {
		return nil, errors.Wrapf(ErrConfig, "unknown factory wrapper %q", name)
	}
	return constructor(), nil
}

func resolveAttacher(name string, factory *Factory) (Attacher, error) {
	if name == "" {
		name = "stack"
	}
	registryMu.Lock()
	constructor, found := attacherRegistry[name]
	registryMu.Unlock()
	if !found {
		return nil, errors.Wrapf(ErrConfig, "unknown attacher %q", name)
	}
	return constructor(factory), nil
}
