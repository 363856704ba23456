package checklist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrUnknownChecklist is returned for a checklist id with no loader.
	ErrUnknownChecklist = errors.New("unknown checklist")
	// ErrNotConfigured is returned when a known checklist has no source file.
	ErrNotConfigured = errors.New("checklist source not configured")
)

var (
	debridementPriority = []string{"Excision", "Extraction", "Drainage"}
	aneurysmPriority    = []string{"Occlusion", "Restriction", "Replacement", "Bypass", "Supplement", "Insertion"}
)

type loaderFunc func(path string) (*Constraints, error)

var loaders = map[string]loaderFunc{
	Debridement:    LoadDebridement,
	AneurysmRepair: LoadAneurysmRepair,
}

// Provider serves checklist constraints from reference files. Each file is
// read at most once.
type Provider struct {
	paths  map[string]string
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string]*Constraints
}

// NewProvider creates a provider reading checklist id -> file path.
func NewProvider(paths map[string]string, logger zerolog.Logger) *Provider {
	return &Provider{paths: paths, logger: logger, cache: make(map[string]*Constraints)}
}

// Constraints returns a copy of the constraints for id.
func (p *Provider) Constraints(id string) (*Constraints, error) {
	load, ok := loaders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChecklist, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cache[id]; ok {
		return c.Clone(), nil
	}
	path := p.paths[id]
	if path == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, id)
	}
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	p.cache[id] = c
	p.logger.Info().Str("checklist", id).Str("file", path).Msg("checklist constraints loaded")
	return c.Clone(), nil
}

// LoadDebridement reads the debridement coding reference. Its body part
// values become the body-part allow-list.
func LoadDebridement(path string) (*Constraints, error) {
	var doc struct {
		Ref struct {
			BodyPart json.RawMessage `json:"character_4_body_part"`
		} `json:"debridement_procedure_coding_reference"`
	}
	if err := readJSON(path, &doc); err != nil {
		return nil, err
	}

	c := &Constraints{RootOpPriority: append([]string(nil), debridementPriority...)}
	var bp map[string]json.RawMessage
	if json.Unmarshal(doc.Ref.BodyPart, &bp) != nil {
		return c, nil
	}
	values, ok := bp["body_part_values"]
	if !ok {
		return c, nil
	}
	err := eachMember(values, func(_ string, v json.RawMessage) error {
		if label, ok := asString(v); ok {
			c.AllowedPos4Labels = append(c.AllowedPos4Labels, label)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read body part values %s: %w", path, err)
	}
	return c, nil
}

// LoadAneurysmRepair reads the aneurysm repair coding reference. Procedures
// contribute their root operations in document order, the first primary
// approach and the first device option type of the last procedure listing one.
func LoadAneurysmRepair(path string) (*Constraints, error) {
	var doc struct {
		Ref struct {
			Procedures json.RawMessage `json:"procedures"`
		} `json:"aneurysm_repair_coding_reference"`
	}
	if err := readJSON(path, &doc); err != nil {
		return nil, err
	}

	c := &Constraints{}
	if len(doc.Ref.Procedures) > 0 {
		err := eachMember(doc.Ref.Procedures, func(_ string, v json.RawMessage) error {
			var proc struct {
				RootOperation json.RawMessage `json:"root_operation"`
				Approach      struct {
					Primary json.RawMessage `json:"primary"`
				} `json:"approach"`
				Device struct {
					Options []json.RawMessage `json:"options"`
				} `json:"device"`
			}
			if json.Unmarshal(v, &proc) != nil {
				return nil
			}
			if ro, ok := asString(proc.RootOperation); ok && !slices.Contains(c.RootOpPriority, ro) {
				c.RootOpPriority = append(c.RootOpPriority, ro)
			}
			if appr, ok := asString(proc.Approach.Primary); ok && appr != "" && c.ApproachRequired == "" {
				c.ApproachRequired = appr
			}
			if len(proc.Device.Options) > 0 {
				var opt struct {
					Type json.RawMessage `json:"type"`
				}
				if json.Unmarshal(proc.Device.Options[0], &opt) == nil {
					if t, ok := asString(opt.Type); ok {
						c.DeviceHint = t
					}
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("read procedures %s: %w", path, err)
		}
	}
	if len(c.RootOpPriority) == 0 {
		c.RootOpPriority = append([]string(nil), aneurysmPriority...)
	}
	return c, nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read checklist %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode checklist %s: %w", path, err)
	}
	return nil
}

// eachMember calls fn for every member of a JSON object in document order.
// Anything other than an object is ignored.
func eachMember(raw json.RawMessage, fn func(key string, value json.RawMessage) error) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
