package generator

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Templates holds the caption and hashtag pools loaded from a YAML file.
// Caption placeholders use {{name}} syntax.
type Templates struct {
	Captions []string `yaml:"captions"`
	Hashtags []string `yaml:"hashtags"`
}

// DefaultTemplates returns the built-in caption and hashtag set used when no
// template file is configured.
func DefaultTemplates() *Templates {
	return &Templates{
		Captions: []string{
			"{{percent}}% of {{year}} is already behind us.",
			"The year {{year}} is {{percent}}% complete. Make it count.",
			"Day {{dayOfYear}}: {{percent}}% of {{year}} gone.",
		},
		Hashtags: []string{"yearprogress", "timeflies", "motivation", "dailyreminder"},
	}
}

// LoadTemplates reads a template file. An empty caption pool is rejected so a
// bad file cannot silently produce blank posts.
func LoadTemplates(path string) (*Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template file %s: %w", path, err)
	}
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse template file %s: %w", path, err)
	}
	if len(t.Captions) == 0 {
		return nil, fmt.Errorf("template file %s defines no captions", path)
	}
	return &t, nil
}

// Caption picks a caption deterministically by index and substitutes the given
// variables. The same index always yields the same caption, so repeated runs
// on the same day produce identical text.
func (t *Templates) Caption(index int, vars map[string]string) string {
	if len(t.Captions) == 0 {
		return ""
	}
	caption := t.Captions[index%len(t.Captions)]
	for name, value := range vars {
		caption = strings.ReplaceAll(caption, "{{"+name+"}}", value)
	}
	return caption
}
