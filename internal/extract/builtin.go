package extract

import (
	"embed"
	"fmt"
	"path"
)

//go:embed descriptors/*.yaml
var descriptorFS embed.FS

//go:embed profiles.yaml
var builtinProfiles []byte

// StrategyOrder is the fixed evaluation order; arbitration ties go to the earlier name.
var StrategyOrder = []string{
	"commercial",
	"invoice",
	"competitive",
	"universal",
	ProfileStrategyName,
	"table_extractor",
	"precise_table",
}

// BuiltinDescriptor returns the embedded descriptor with the given name.
func BuiltinDescriptor(name string) (Descriptor, error) {
	data, err := descriptorFS.ReadFile(path.Join("descriptors", name+".yaml"))
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: no built-in descriptor %q", ErrBadDescriptor, name)
	}
	return ParseDescriptor(data)
}

// BuiltinProfiles loads the embedded supplier profiles.
func BuiltinProfiles(opts ...Option) (*ProfileSet, error) {
	return LoadProfiles(builtinProfiles, opts...)
}

// BuiltinParsers compiles the seven strategies in StrategyOrder. A nil profile set
// loads the embedded profiles.
func BuiltinParsers(profiles *ProfileSet, opts ...Option) ([]Parser, error) {
	if profiles == nil {
		var err error
		if profiles, err = BuiltinProfiles(opts...); err != nil {
			return nil, err
		}
	}
	out := make([]Parser, 0, len(StrategyOrder))
	for _, name := range StrategyOrder {
		if name == ProfileStrategyName {
			out = append(out, NewProfileStrategy(profiles))
			continue
		}
		d, err := BuiltinDescriptor(name)
		if err != nil {
			return nil, err
		}
		s, err := Compile(d, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
