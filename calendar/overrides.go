package calendar

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/warp/leave-engine/generic"
	"gopkg.in/yaml.v3"
)

// Overrides maps country -> year -> holiday list replacing the computed one.
type Overrides map[string]map[int][]Holiday

func (o Overrides) lookup(country string, year int) ([]Holiday, bool) {
	years, ok := o[country]
	if !ok {
		return nil, false
	}
	list, ok := years[year]
	return list, ok
}

// Merge returns a copy of o where every (country, year) in other wins.
func (o Overrides) Merge(other Overrides) Overrides {
	out := make(Overrides, len(o)+len(other))
	for _, src := range []Overrides{o, other} {
		for country, years := range src {
			if out[country] == nil {
				out[country] = make(map[int][]Holiday)
			}
			for year, list := range years {
				out[country][year] = list
			}
		}
	}
	return out
}

// DefaultOverrides is the built-in table for years the computed
// definitions get wrong.
func DefaultOverrides() Overrides {
	zh2016 := []struct{ date, name string }{
		{"2016-01-01", "New Years Day"},
		{"2016-02-07", "Chinese New Years Eve"},
		{"2016-02-08", "Chinese New Years Day"},
		{"2016-02-09", "Chinese New Year Holiday 1"},
		{"2016-02-10", "Chinese New Year Holiday 2"},
		{"2016-02-11", "Chinese New Year Holiday 3"},
		{"2016-02-12", "Chinese New Year Holiday 4"},
		{"2016-02-29", "228 Memorial Day (observed)"},
		{"2016-04-04", "Childrens Day"},
		{"2016-04-05", "Tomb Sweeping Day"},
		{"2016-06-09", "Dragon Boat Festival"},
		{"2016-09-15", "Mid-Autumn Festival"},
		{"2016-09-16", "Mid-Autumn Festival (observance)"},
		{"2016-10-10", "National Day"},
	}
	list := make([]Holiday, 0, len(zh2016))
	for _, h := range zh2016 {
		d, _ := generic.ParseDate(h.date)
		list = append(list, Holiday{Date: d, Name: h.name})
	}
	return Overrides{"zh": {2016: list}}
}

// =============================================================================
// YAML FILES
// =============================================================================

// overrideFile is the on-disk layout:
//
//	overrides:
//	  zh:
//	    2017:
//	      - date: 2017-01-27
//	        name: Chinese New Years Eve
type overrideFile struct {
	Overrides map[string]map[int][]struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"overrides"`
}

// ParseOverrides decodes an override table from YAML.
func ParseOverrides(data []byte) (Overrides, error) {
	var raw overrideFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "calendar: parse overrides")
	}

	out := make(Overrides, len(raw.Overrides))
	for country, years := range raw.Overrides {
		out[country] = make(map[int][]Holiday, len(years))
		for year, list := range years {
			holidays := make([]Holiday, 0, len(list))
			for _, h := range list {
				d, err := generic.ParseDate(h.Date)
				if err != nil {
					return nil, errors.Wrapf(err, "calendar: %s/%d: invalid date %q", country, year, h.Date)
				}
				if d.Year() != year {
					return nil, errors.Newf("calendar: %s/%d: date %s outside year", country, year, h.Date)
				}
				holidays = append(holidays, Holiday{Date: d, Name: h.Name})
			}
			out[country][year] = holidays
		}
	}
	return out, nil
}

// LoadOverrides reads an override file. An empty path yields no overrides.
func LoadOverrides(path string) (Overrides, error) {
	if path == "" {
		return Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "calendar: read overrides %s", path)
	}
	return ParseOverrides(data)
}
