package repo

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ehsgw/gateway/expr"
	"gopkg.in/yaml.v3"
)

// ErrKind classifies a Repository load failure. All of them are wrapped
// in a *ConfigInvalid, which is the only error this package's public API
// returns.
type ErrKind uint8

const (
	_ ErrKind = iota
	DuplicateAddress
	BadArithmetic
	BadEnum
	BadKind
	BadAddress
)

func (k ErrKind) String() string {
	switch k {
	case DuplicateAddress:
		return "duplicate address"
	case BadArithmetic:
		return "bad arithmetic"
	case BadEnum:
		return "bad enum"
	case BadKind:
		return "bad kind"
	case BadAddress:
		return "bad address"
	default:
		return "bad repository"
	}
}

// ConfigInvalid reports a Repository document that failed validation.
// It is unrecoverable: the caller should log it and exit.
type ConfigInvalid struct {
	Entry string // variable name, if known
	Kind  ErrKind
	Err   error // underlying cause, if any
}

// Error implements the builtin.error interface.
func (c *ConfigInvalid) Error() string {
	if c.Err != nil {
		return fmt.Sprintf("repo: %s: %s: %v", c.Entry, c.Kind, c.Err)
	}
	return fmt.Sprintf("repo: %s: %s", c.Entry, c.Kind)
}

func (c *ConfigInvalid) Unwrap() error { return c.Err }

// document is the on-disk shape of a repository file.
type document struct {
	Variables []docEntry `yaml:"variables"`
}

type docEntry struct {
	Name    string         `yaml:"name"`
	Address string         `yaml:"address"` // decimal or 0x-prefixed hexadecimal
	Kind    string         `yaml:"kind"`
	Width   int            `yaml:"width"` // required only for ENUM
	Unit    string         `yaml:"unit"`
	Forward string         `yaml:"forward"`
	Reverse string         `yaml:"reverse"`
	Enum    map[int]string `yaml:"enum"`
	Writable bool          `yaml:"writable"`
}

// Repository is the immutable, validated variable table. The zero value
// is not useful; construct one with Load or New.
type Repository struct {
	byName    map[string]*Entry
	byAddress map[uint16]*Entry
	ordered   []*Entry // load order, for deterministic iteration
}

// Load reads and validates a repository document from path.
func Load(path string) (*Repository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigInvalid{Kind: BadAddress, Err: err}
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads and validates a repository document from r.
func Decode(r io.Reader) (*Repository, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &ConfigInvalid{Kind: BadKind, Err: err}
	}
	return newRepository(doc.Variables)
}

// newRepository validates raw entries and returns an immutable
// Repository.
func newRepository(raw []docEntry) (*Repository, error) {
	repository := &Repository{
		byName:    make(map[string]*Entry, len(raw)),
		byAddress: make(map[uint16]*Entry, len(raw)),
	}

	for _, d := range raw {
		entry, err := compile(d)
		if err != nil {
			return nil, err
		}

		if _, dup := repository.byAddress[entry.Address]; dup {
			return nil, &ConfigInvalid{Entry: entry.Name, Kind: DuplicateAddress}
		}
		if _, dup := repository.byName[entry.Name]; dup {
			return nil, &ConfigInvalid{Entry: entry.Name, Kind: DuplicateAddress}
		}

		repository.byName[entry.Name] = entry
		repository.byAddress[entry.Address] = entry
		repository.ordered = append(repository.ordered, entry)
	}

	return repository, nil
}

func compile(d docEntry) (*Entry, error) {
	addr, err := strconv.ParseUint(d.Address, 0, 16)
	if err != nil {
		return nil, &ConfigInvalid{Entry: d.Name, Kind: BadAddress, Err: err}
	}

	kind, err := parseKind(d.Kind)
	if err != nil {
		return nil, &ConfigInvalid{Entry: d.Name, Kind: BadKind, Err: err}
	}

	entry := &Entry{
		Name:        d.Name,
		Address:     uint16(addr),
		Kind:        kind,
		Unit:        d.Unit,
		ForwardExpr: d.Forward,
		ReverseExpr: d.Reverse,
		Writable:    d.Writable,
	}

	if d.Forward != "" {
		prog, err := expr.Compile(d.Forward)
		if err != nil {
			return nil, &ConfigInvalid{Entry: d.Name, Kind: BadArithmetic, Err: err}
		}
		entry.Forward = prog
	}
	if d.Reverse != "" {
		prog, err := expr.Compile(d.Reverse)
		if err != nil {
			return nil, &ConfigInvalid{Entry: d.Name, Kind: BadArithmetic, Err: err}
		}
		entry.Reverse = prog
	}

	if kind == ENUM {
		if len(d.Enum) == 0 {
			return nil, &ConfigInvalid{Entry: d.Name, Kind: BadEnum, Err: fmt.Errorf("enum map required")}
		}
		if d.Width != 1 && d.Width != 2 && d.Width != 4 {
			return nil, &ConfigInvalid{Entry: d.Name, Kind: BadEnum, Err: fmt.Errorf("width must be 1, 2 or 4 for enum entries")}
		}
		entry.enumWidth = d.Width

		entry.EnumMap = make(map[int]string, len(d.Enum))
		entry.EnumRev = make(map[string]int, len(d.Enum))
		for id, label := range d.Enum {
			if id < 0 {
				return nil, &ConfigInvalid{Entry: d.Name, Kind: BadEnum, Err: fmt.Errorf("negative id %d", id)}
			}
			if label == "" {
				return nil, &ConfigInvalid{Entry: d.Name, Kind: BadEnum, Err: fmt.Errorf("empty label for id %d", id)}
			}
			if prior, dup := entry.EnumRev[label]; dup {
				return nil, &ConfigInvalid{Entry: d.Name, Kind: BadEnum, Err: fmt.Errorf("label %q used by both %d and %d", label, prior, id)}
			}
			entry.EnumMap[id] = label
			entry.EnumRev[label] = id
		}
	}

	return entry, nil
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "U8":
		return U8, nil
	case "I16":
		return I16, nil
	case "I32":
		return I32, nil
	case "STRING":
		return STRING, nil
	case "ENUM":
		return ENUM, nil
	default:
		return 0, fmt.Errorf("unknown kind %q", s)
	}
}

// ByName looks up an entry by its symbolic name.
func (r *Repository) ByName(name string) (*Entry, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// ByAddress looks up an entry by its wire address.
func (r *Repository) ByAddress(addr uint16) (*Entry, bool) {
	e, ok := r.byAddress[addr]
	return e, ok
}

// Names resolves a list of variable names against the repository,
// dropping any that do not resolve. The spec requires that invalid
// entries in a polling group are dropped with a warning, never fatal, so
// this returns both the resolved list and the dropped names.
func (r *Repository) Names(names []string) (resolved []string, dropped []string) {
	for _, n := range names {
		if _, ok := r.byName[n]; ok {
			resolved = append(resolved, n)
		} else {
			dropped = append(dropped, n)
		}
	}
	return resolved, dropped
}

// All returns every entry in load order.
func (r *Repository) All() []*Entry {
	out := make([]*Entry, len(r.ordered))
	copy(out, r.ordered)
	return out
}
