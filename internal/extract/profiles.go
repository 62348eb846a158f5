package extract

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"procparse/internal"
)

const ProfileStrategyName = "supplier_profile"

var reINN = regexp.MustCompile(`(?i)инн\s*:?\s*(\d{10,12})`)

// Profile is a per-supplier override: identification data plus a descriptor with a
// fixed column map, header patterns and predicates.
type Profile struct {
	ID          string     `yaml:"id"`
	DisplayName string     `yaml:"display_name"`
	TaxID       string     `yaml:"tax_id"`
	Aliases     []string   `yaml:"aliases"`
	Descriptor  Descriptor `yaml:"descriptor"`
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// ProfileSet is the static profile table, loaded once.
type ProfileSet struct {
	profiles   []Profile
	strategies map[string]*Strategy
}

func LoadProfiles(data []byte, opts ...Option) (*ProfileSet, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: profiles: %v", ErrBadDescriptor, err)
	}
	ps := &ProfileSet{strategies: make(map[string]*Strategy, len(f.Profiles))}
	for _, p := range f.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: profile without id", ErrBadDescriptor)
		}
		if _, dup := ps.strategies[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate profile %q", ErrBadDescriptor, p.ID)
		}
		d := p.Descriptor
		d.Name = ProfileStrategyName
		d.SupplierID = p.ID
		d.SupplierName = p.DisplayName
		if d.SourceFormat == "" {
			d.SourceFormat = "profile_{profile}_table_{table}_row_{row}"
		}
		s, err := Compile(d, opts...)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.ID, err)
		}
		p.Descriptor = d
		ps.profiles = append(ps.profiles, p)
		ps.strategies[p.ID] = s
	}
	return ps, nil
}

// LoadProfilesFile reads profiles from path, or the built-in set when path is empty.
func LoadProfilesFile(path string, opts ...Option) (*ProfileSet, error) {
	if path == "" {
		return LoadProfiles(builtinProfiles, opts...)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return LoadProfiles(data, opts...)
}

// Identify resolves the supplier of a document: aliases first, in declaration order,
// then tax ids found in the text.
func (ps *ProfileSet) Identify(text string) (Profile, bool) {
	lower := strings.ToLower(text)
	for _, p := range ps.profiles {
		for _, a := range p.Aliases {
			if a != "" && strings.Contains(lower, strings.ToLower(a)) {
				return p, true
			}
		}
	}
	for _, m := range reINN.FindAllStringSubmatch(text, -1) {
		for _, p := range ps.profiles {
			if p.TaxID != "" && p.TaxID == m[1] {
				return p, true
			}
		}
	}
	return Profile{}, false
}

func (ps *ProfileSet) IDs() []string {
	out := make([]string, 0, len(ps.profiles))
	for _, p := range ps.profiles {
		out = append(out, p.ID)
	}
	return out
}

func (ps *ProfileSet) Get(id string) (Profile, bool) {
	for _, p := range ps.profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

func (ps *ProfileSet) Profiles() []Profile {
	return append([]Profile(nil), ps.profiles...)
}

// ProfileStrategy runs the descriptor of whichever profile the document belongs to.
type ProfileStrategy struct {
	set *ProfileSet
}

func NewProfileStrategy(set *ProfileSet) *ProfileStrategy {
	return &ProfileStrategy{set: set}
}

func (p *ProfileStrategy) Name() string { return ProfileStrategyName }

func (p *ProfileStrategy) Parse(text string, tables []internal.Table) StrategyResult {
	if p.set == nil {
		return StrategyResult{Strategy: ProfileStrategyName}
	}
	profile, ok := p.set.Identify(text)
	if !ok {
		return StrategyResult{Strategy: ProfileStrategyName}
	}
	res := p.set.strategies[profile.ID].Parse(text, tables)
	res.Strategy = ProfileStrategyName
	res.SupplierID = profile.ID
	return res
}
