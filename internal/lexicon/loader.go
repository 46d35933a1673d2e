package lexicon

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// categoryFile is the on-disk shape of a category dictionary.
type categoryFile struct {
	Categories map[string]categoryRule `yaml:"categories"`
}

type categoryRule struct {
	Detect        []string `yaml:"detect"`
	Match         []string `yaml:"match"`
	CandidateLike []string `yaml:"candidate_like"`
	LikeExtra     []string `yaml:"like_extra"`
	Exclude       []string `yaml:"exclude"`
}

// toDictionary folds detection and LIKE terms into roots and exclusions into stopwords.
func (c categoryFile) toDictionary() Dictionary {
	var d Dictionary
	for _, rule := range c.Categories {
		detect := rule.Detect
		if len(detect) == 0 {
			detect = rule.Match
		}
		like := rule.CandidateLike
		if len(like) == 0 {
			like = rule.LikeExtra
		}
		d.Roots = append(d.Roots, detect...)
		d.Roots = append(d.Roots, like...)
		d.Stopwords = append(d.Stopwords, rule.Exclude...)
	}
	return d
}

// LoadFiles builds a lexicon from the defaults plus the optional category and
// keyword dictionary files. Empty paths are skipped.
func LoadFiles(keywordsPath, categoryPath string) (*Lexicon, error) {
	var dicts []Dictionary

	if categoryPath != "" {
		var cf categoryFile
		if err := readYAML(categoryPath, &cf); err != nil {
			return nil, fmt.Errorf("load category dictionary: %w", err)
		}
		dicts = append(dicts, cf.toDictionary())
	}

	if keywordsPath != "" {
		var kd Dictionary
		if err := readYAML(keywordsPath, &kd); err != nil {
			return nil, fmt.Errorf("load keywords dictionary: %w", err)
		}
		dicts = append(dicts, kd)
	}

	return New(dicts...), nil
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
