package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateOddsID = errors.New("duplicate odds id")
	ErrInvalidOddsPath = errors.New("invalid odds path")
)

// Odd é uma folha da tabela de odds
type Odd struct {
	ID  string          `json:"id"`
	Odd decimal.Decimal `json:"odd"`
}

// OddsTable mapeia o caminho da categoria ("home", "result.home") para a folha.
// Em JSON é um objeto aninhado; em memória é plano, chaveado pelo caminho com pontos.
type OddsTable map[string]Odd

// OddsRef é o que uma previsão referencia pelo id travado na aposta
type OddsRef struct {
	Path     string
	Category string
	Odd      decimal.Decimal
}

// OddsIndex é o mapa id -> referência, construído uma vez por partida
type OddsIndex map[string]OddsRef

// Category é o último segmento do caminho ("result.home" -> "home")
func Category(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Index constrói o índice por id. Ids repetidos ficam com o primeiro caminho
// em ordem lexicográfica; Validate reporta o problema.
func (t OddsTable) Index() OddsIndex {
	idx := make(OddsIndex, len(t))
	for _, p := range t.Paths() {
		o := t[p]
		if _, dup := idx[o.ID]; dup {
			continue
		}
		idx[o.ID] = OddsRef{Path: p, Category: Category(p), Odd: o.Odd}
	}
	return idx
}

// Paths retorna os caminhos ordenados
func (t OddsTable) Paths() []string {
	ps := make([]string, 0, len(t))
	for p := range t {
		ps = append(ps, p)
	}
	sort.Strings(ps)
	return ps
}

// Validate garante ids não vazios e únicos dentro da partida
func (t OddsTable) Validate() error {
	seen := make(map[string]string, len(t))
	for _, p := range t.Paths() {
		if p == "" || strings.HasPrefix(p, ".") || strings.HasSuffix(p, ".") || strings.Contains(p, "..") {
			return fmt.Errorf("%w: %q", ErrInvalidOddsPath, p)
		}
		id := t[p].ID
		if id == "" {
			return fmt.Errorf("%w: empty id at %q", ErrInvalidOddsPath, p)
		}
		if other, ok := seen[id]; ok {
			return fmt.Errorf("%w: %q at %q and %q", ErrDuplicateOddsID, id, other, p)
		}
		seen[id] = p
	}
	return nil
}

func (t OddsTable) MarshalJSON() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	root := map[string]any{}
	for _, p := range t.Paths() {
		parts := strings.Split(p, ".")
		node := root
		for _, seg := range parts[:len(parts)-1] {
			child, ok := node[seg].(map[string]any)
			if !ok {
				if _, leaf := node[seg]; leaf {
					return nil, fmt.Errorf("%w: %q is both leaf and branch", ErrInvalidOddsPath, seg)
				}
				child = map[string]any{}
				node[seg] = child
			}
			node = child
		}
		last := parts[len(parts)-1]
		if _, exists := node[last]; exists {
			return nil, fmt.Errorf("%w: %q is both leaf and branch", ErrInvalidOddsPath, p)
		}
		node[last] = t[p]
	}
	// encoding/json ordena chaves de map, então a saída é estável
	return json.Marshal(root)
}

func (t *OddsTable) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*t = nil
		return nil
	}
	out := OddsTable{}
	if err := decodeOddsNode(b, "", out); err != nil {
		return err
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*t = out
	return nil
}

// decodeOddsNode percorre o objeto: um nó com "id" e "odd" é folha, o resto é ramo
func decodeOddsNode(b []byte, prefix string, out OddsTable) error {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(b, &node); err != nil {
		return fmt.Errorf("odds at %q: %w", prefix, err)
	}
	_, hasID := node["id"]
	_, hasOdd := node["odd"]
	if hasID && hasOdd && prefix != "" {
		var o Odd
		if err := json.Unmarshal(b, &o); err != nil {
			return fmt.Errorf("odds leaf %q: %w", prefix, err)
		}
		out[prefix] = o
		return nil
	}
	for k, raw := range node {
		if k == "" || strings.Contains(k, ".") {
			return fmt.Errorf("%w: key %q", ErrInvalidOddsPath, k)
		}
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if err := decodeOddsNode(raw, path, out); err != nil {
			return err
		}
	}
	return nil
}
