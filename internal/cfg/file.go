package cfg

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

// LoadFile applies a YAML document of flag-name: value pairs to every flag
// not already set on the CLI or from the environment, so the final
// precedence is cli > env > file > default. Call it after FillFromEnv.
// Unknown keys and unparsable values are errors.
func LoadFile(fs *flag.FlagSet, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Wrapf(err, "read config file %s", path)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return xerrors.Wrapf(err, "parse config file %s", path)
	}
	return apply(fs, doc)
}

func apply(fs *flag.FlagSet, doc map[string]any) error {
	set := setFlags(fs)

	names := make([]string, 0, len(doc))
	for k := range doc {
		names = append(names, k)
	}
	sort.Strings(names)

	var problems []string
	for _, name := range names {
		if fs.Lookup(name) == nil {
			problems = append(problems, fmt.Sprintf("unknown key %q", name))
			continue
		}
		if set[name] {
			continue
		}
		if err := fs.Set(name, scalar(doc[name])); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(problems) > 0 {
		return xerrors.Newf("config file: %s", strings.Join(problems, "; "))
	}
	return nil
}

// scalar renders a YAML value as flag text; sequences become comma lists.
func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = scalar(e)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}
