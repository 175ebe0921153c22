package thredds

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/jmgilman/oceanctl/internal/model"
)

// Catalog is a THREDDS InvCatalog 1.x document.
type Catalog struct {
	XMLName  xml.Name     `xml:"catalog"`
	Name     string       `xml:"name,attr"`
	Version  string       `xml:"version,attr"`
	Services []Service    `xml:"service"`
	Datasets []Dataset    `xml:"dataset"`
	Refs     []CatalogRef `xml:"catalogRef"`
}

// Service describes one access protocol offered by the server.
type Service struct {
	Name        string    `xml:"name,attr"`
	ServiceType string    `xml:"serviceType,attr"`
	Base        string    `xml:"base,attr"`
	Services    []Service `xml:"service"`
}

// Dataset is a catalog dataset element. A dataset with a URLPath is
// accessible data; one without is a container.
type Dataset struct {
	Name     string       `xml:"name,attr"`
	ID       string       `xml:"ID,attr"`
	URLPath  string       `xml:"urlPath,attr"`
	Datasets []Dataset    `xml:"dataset"`
	Refs     []CatalogRef `xml:"catalogRef"`
	Metadata []Metadata   `xml:"metadata"`
	DataSize *DataSize    `xml:"dataSize"`
	Properties
}

// Properties are the metadata elements that may appear directly on a dataset
// or inside a metadata block.
type Properties struct {
	DataFormat   string              `xml:"dataFormat"`
	Variables    []VariableGroup     `xml:"variables"`
	TimeCoverage *TimeCoverage       `xml:"timeCoverage"`
	GeoCoverage  *GeospatialCoverage `xml:"geospatialCoverage"`
}

// Metadata is a metadata block. Inherited blocks apply to nested datasets.
type Metadata struct {
	Inherited bool `xml:"inherited,attr"`
	Properties
}

// CatalogRef links to another catalog document.
type CatalogRef struct {
	Href  string `xml:"http://www.w3.org/1999/xlink href,attr"`
	Title string `xml:"http://www.w3.org/1999/xlink title,attr"`
	Name  string `xml:"name,attr"`
	ID    string `xml:"ID,attr"`
}

// DisplayName returns the title or name of the reference.
func (r CatalogRef) DisplayName() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

// DataSize is the advertised size of a dataset.
type DataSize struct {
	Units string `xml:"units,attr"`
	Value string `xml:",chardata"`
}

// VariableGroup lists variables under one vocabulary.
type VariableGroup struct {
	Vocabulary string     `xml:"vocabulary,attr"`
	Variables  []Variable `xml:"variable"`
}

// Variable is one advertised variable.
type Variable struct {
	Name           string `xml:"name,attr"`
	Units          string `xml:"units,attr"`
	VocabularyName string `xml:"vocabulary_name,attr"`
	Description    string `xml:",chardata"`
}

// TimeCoverage is a dataset's temporal extent.
type TimeCoverage struct {
	Start string `xml:"start"`
	End   string `xml:"end"`
}

// GeospatialCoverage is a dataset's spatial extent.
type GeospatialCoverage struct {
	NorthSouth *Range `xml:"northsouth"`
	EastWest   *Range `xml:"eastwest"`
}

// Range is a start plus size along one axis.
type Range struct {
	Start string `xml:"start"`
	Size  string `xml:"size"`
}

// merge returns p overlaid on top of base.
func (p Properties) merge(base Properties) Properties {
	out := base
	if p.DataFormat != "" {
		out.DataFormat = p.DataFormat
	}
	if len(p.Variables) > 0 {
		out.Variables = p.Variables
	}
	if p.TimeCoverage != nil {
		out.TimeCoverage = p.TimeCoverage
	}
	if p.GeoCoverage != nil {
		out.GeoCoverage = p.GeoCoverage
	}
	return out
}

// properties returns d's own properties over inherited ones, and the set its
// children inherit.
func (d Dataset) properties(inherited Properties) (own, forChildren Properties) {
	own = inherited
	forChildren = inherited
	for _, m := range d.Metadata {
		own = m.Properties.merge(own)
		if m.Inherited {
			forChildren = m.Properties.merge(forChildren)
		}
	}
	own = d.Properties.merge(own)
	return own, forChildren
}

// metadata converts resolved properties into model metadata for path.
func (p Properties) metadata(path string) *model.DatasetMetadata {
	md := &model.DatasetMetadata{
		Path:      path,
		Format:    p.DataFormat,
		Variables: []model.Variable{},
	}
	for _, g := range p.Variables {
		for _, v := range g.Variables {
			md.Variables = append(md.Variables, model.Variable{
				Name:     v.Name,
				Units:    v.Units,
				LongName: strings.TrimSpace(v.Description),
			})
		}
	}
	if tc := p.TimeCoverage; tc != nil {
		md.Coverage.TimeStart = strings.TrimSpace(tc.Start)
		md.Coverage.TimeEnd = strings.TrimSpace(tc.End)
	}
	if gc := p.GeoCoverage; gc != nil {
		if gc.NorthSouth != nil {
			md.Coverage.South, md.Coverage.North = gc.NorthSouth.bounds()
		}
		if gc.EastWest != nil {
			md.Coverage.West, md.Coverage.East = gc.EastWest.bounds()
		}
	}
	return md
}

func (r *Range) bounds() (lo, hi *float64) {
	start, err := strconv.ParseFloat(strings.TrimSpace(r.Start), 64)
	if err != nil {
		return nil, nil
	}
	size, err := strconv.ParseFloat(strings.TrimSpace(r.Size), 64)
	if err != nil {
		return &start, nil
	}
	end := start + size
	if end < start {
		start, end = end, start
	}
	return &start, &end
}
