package schedule

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/radieske/virtual-matchday/internal/matchday/model"
)

// League é uma liga virtual com seus times
type League struct {
	ID    string       `yaml:"id"`
	Name  string       `yaml:"name"`
	Teams []model.Team `yaml:"teams"`
}

// catalogFile é o formato do LEAGUES_FILE; model.Team não tem tags yaml,
// o yaml.v3 usa o nome do campo em minúsculas ("id", "name")
type catalogFile struct {
	Leagues []League `yaml:"leagues"`
}

// LoadCatalog lê o catálogo de ligas de um YAML; path vazio usa o catálogo embutido
func LoadCatalog(path string) ([]League, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read leagues file: %w", err)
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) ([]League, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse leagues: %w", err)
	}
	if len(f.Leagues) == 0 {
		return nil, fmt.Errorf("parse leagues: no leagues defined")
	}

	leagueIDs := map[string]bool{}
	out := make([]League, 0, len(f.Leagues))
	for _, l := range f.Leagues {
		if l.ID == "" {
			return nil, fmt.Errorf("parse leagues: league %q without id", l.Name)
		}
		if leagueIDs[l.ID] {
			return nil, fmt.Errorf("parse leagues: duplicate league id %q", l.ID)
		}
		leagueIDs[l.ID] = true

		teamIDs := map[string]bool{}
		for _, t := range l.Teams {
			if t.ID == "" || teamIDs[t.ID] {
				return nil, fmt.Errorf("parse leagues: league %q has missing or duplicate team id %q", l.ID, t.ID)
			}
			teamIDs[t.ID] = true
		}
		out = append(out, l)
	}
	return out, nil
}

// DefaultCatalog é usado quando LEAGUES_FILE não é informado
func DefaultCatalog() []League {
	mk := func(prefix string, names ...string) []model.Team {
		ts := make([]model.Team, len(names))
		for i, n := range names {
			ts[i] = model.Team{ID: fmt.Sprintf("%s-%02d", prefix, i+1), Name: n}
		}
		return ts
	}
	return []League{
		{ID: "vpl", Name: "Virtual Premier League", Teams: mk("vpl",
			"Northbridge", "Kingsport", "Ashford Town", "Riverside", "Millwater", "Eastvale",
			"Harbor City", "Old Forge", "Westcliff", "Stonebury")},
		{ID: "vll", Name: "Virtual La Liga", Teams: mk("vll",
			"Costa Real", "Sierra Norte", "Valle Verde", "Puerto Sol", "Torre Alta", "Río Claro",
			"Mirador", "Campo Viejo")},
		{ID: "vsa", Name: "Virtual Série A", Teams: mk("vsa",
			"Atlético Serrano", "Unidos do Vale", "Porto Novo", "Real Cerrado", "Estrela do Sul",
			"Ipiranga FC", "Boa Vista", "Santa Luzia", "Cruzeiro do Mar")},
	}
}
