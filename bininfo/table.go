package bininfo

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/alovak/paytrust/internal/cardgen"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed bins.yaml
var defaultTable []byte

// Source is the BIN reference data the classifier reads from.
type Source interface {
	// Lookup returns the entry for a 6-digit BIN.
	Lookup(bin string) (*Entry, bool)
	// Schema returns the PAN/CVV rules of a card network.
	Schema(name string) (SchemaRules, bool)
}

type SchemaRules struct {
	Name       string `yaml:"name"`
	PANLengths []int  `yaml:"pan_lengths"`
	CVVLength  int    `yaml:"cvv_length"`
}

type PlanRule struct {
	Count          int             `yaml:"count"`
	InterestRate   decimal.Decimal `yaml:"interest_rate"`
	CommissionRate decimal.Decimal `yaml:"commission_rate"`
}

// Program is the installment offer of an issuer.
type Program struct {
	Currencies []string `yaml:"currencies"`
	// MaxCount caps the installment count per product type; "default"
	// applies to product types that are not listed.
	MaxCount map[string]int `yaml:"max_count"`
	Plans    []PlanRule     `yaml:"plans"`
}

// Entry is what the table knows about a BIN.
type Entry struct {
	BIN      string
	Issuer   string
	Brand    string
	Schema   string
	CardType string
	Program  *Program
}

type tableFile struct {
	Version string        `yaml:"version"`
	Schemas []SchemaRules `yaml:"schemas"`
	Issuers []struct {
		Name        string   `yaml:"name"`
		Brand       string   `yaml:"brand"`
		Installment *Program `yaml:"installment"`
		BINs        []struct {
			BIN      string `yaml:"bin"`
			Schema   string `yaml:"schema"`
			CardType string `yaml:"card_type"`
		} `yaml:"bins"`
	} `yaml:"issuers"`
}

// Table is an in-memory Source loaded from YAML. It is read-only after load.
type Table struct {
	Version string
	entries map[string]*Entry
	schemas map[string]SchemaRules
}

// DefaultTable parses the embedded reference table.
func DefaultTable() (*Table, error) {
	return ParseYAML(defaultTable)
}

// LoadYAML reads a table from a file.
func LoadYAML(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bin table: %w", err)
	}
	return ParseYAML(data)
}

func ParseYAML(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing bin table: %w", err)
	}

	t := &Table{
		Version: f.Version,
		entries: make(map[string]*Entry),
		schemas: make(map[string]SchemaRules),
	}

	for _, s := range f.Schemas {
		if s.Name == "" {
			return nil, fmt.Errorf("schema without name")
		}
		t.schemas[s.Name] = s
	}

	for _, iss := range f.Issuers {
		if iss.Installment != nil {
			if err := validateProgram(iss.Name, iss.Installment); err != nil {
				return nil, err
			}
		}
		for _, b := range iss.BINs {
			if len(b.BIN) != binLen || !cardgen.IsDigits(b.BIN) {
				return nil, fmt.Errorf("issuer %s: bin %q must be %d digits", iss.Name, b.BIN, binLen)
			}
			if _, ok := t.entries[b.BIN]; ok {
				return nil, fmt.Errorf("duplicate bin %s", b.BIN)
			}
			if _, ok := t.schemas[b.Schema]; !ok {
				return nil, fmt.Errorf("bin %s: unknown schema %q", b.BIN, b.Schema)
			}
			t.entries[b.BIN] = &Entry{
				BIN:      b.BIN,
				Issuer:   iss.Name,
				Brand:    iss.Brand,
				Schema:   b.Schema,
				CardType: strings.ToLower(b.CardType),
				Program:  iss.Installment,
			}
		}
	}

	return t, nil
}

func validateProgram(issuer string, p *Program) error {
	for i, c := range p.Currencies {
		p.Currencies[i] = strings.ToUpper(c)
	}
	for _, plan := range p.Plans {
		if plan.Count < 2 {
			return fmt.Errorf("issuer %s: installment count must be at least 2 (got %d)", issuer, plan.Count)
		}
		if plan.InterestRate.IsNegative() || plan.CommissionRate.IsNegative() {
			return fmt.Errorf("issuer %s: rates must not be negative", issuer)
		}
	}
	return nil
}

func (t *Table) Lookup(bin string) (*Entry, bool) {
	e, ok := t.entries[bin]
	return e, ok
}

func (t *Table) Schema(name string) (SchemaRules, bool) {
	s, ok := t.schemas[name]
	return s, ok
}

// Len returns the number of BINs in the table.
func (t *Table) Len() int {
	return len(t.entries)
}
