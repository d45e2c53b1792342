package vocab

import (
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"rd3/pkg/domain"
)

// Mapper holds the mapping tables plus the lookup codes known to the
// warehouse. The zero value is not usable; call New.
type Mapper struct {
	sex          map[string]string
	tissue       map[string]string
	material     map[string]string
	ern          map[string]string
	organisation map[string]string
	seqType      map[string]string
	disease      map[string]string
	known        map[domain.Table]map[string]string
}

// New returns a mapper seeded with the default tables.
func New() *Mapper {
	m := &Mapper{
		sex:          copyMap(sexCodes),
		tissue:       copyMap(tissueAliases),
		material:     copyMap(materialAliases),
		ern:          copyMap(ernAliases),
		organisation: map[string]string{},
		seqType:      copyMap(seqTypeAliases),
		disease:      copyMap(diseaseReplacements),
		known:        map[domain.Table]map[string]string{},
	}
	m.Register(domain.LookupERN, ernIDs...)
	m.Register(domain.LookupTissueType, tissueTypes...)
	m.Register(domain.LookupSeqType, seqTypes...)
	m.Register(domain.LookupFileType, fileTypes...)
	return m
}

// Register marks lookup ids as present in the warehouse.
func (m *Mapper) Register(table domain.Table, ids ...string) {
	if m.known[table] == nil {
		m.known[table] = map[string]string{}
	}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		m.known[table][lookupKey(table, id)] = id
	}
}

// Known reports whether id resolves in table, returning the stored spelling.
func (m *Mapper) Known(table domain.Table, id string) (string, bool) {
	canonical, ok := m.known[table][lookupKey(table, id)]
	return canonical, ok
}

// KnownIDs returns the registered ids of table, sorted.
func (m *Mapper) KnownIDs(table domain.Table) []string {
	out := make([]string, 0, len(m.known[table]))
	for _, id := range m.known[table] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func lookupKey(table domain.Table, id string) string {
	if table == domain.LookupERN {
		return ernKey(id)
	}
	return key(id)
}

// Aliases is the YAML shape of alias overrides. Every section is optional
// and merged over the defaults.
type Aliases struct {
	Sex          map[string]string `yaml:"sex"`
	Tissue       map[string]string `yaml:"tissue"`
	Material     map[string]string `yaml:"material"`
	ERN          map[string]string `yaml:"ern"`
	Organisation map[string]string `yaml:"organisation"`
	SeqType      map[string]string `yaml:"seqType"`
	Disease      map[string]string `yaml:"disease"`
}

// LoadAliases merges YAML alias overrides into the mapper.
func (m *Mapper) LoadAliases(r io.Reader) error {
	var a Aliases
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil && err != io.EOF {
		return err
	}
	merge(m.sex, a.Sex, key)
	merge(m.tissue, a.Tissue, key)
	merge(m.material, a.Material, key)
	merge(m.ern, a.ERN, ernKey)
	merge(m.organisation, a.Organisation, key)
	merge(m.seqType, a.SeqType, key)
	merge(m.disease, a.Disease, NormalizeCode)
	for _, id := range a.ERN {
		m.Register(domain.LookupERN, id)
	}
	for _, id := range a.Tissue {
		m.Register(domain.LookupTissueType, id)
	}
	for _, id := range a.SeqType {
		m.Register(domain.LookupSeqType, id)
	}
	return nil
}

// Sex recodes a sex value from shipments, PED files or phenopackets.
func (m *Mapper) Sex(v string) (*string, error) {
	k := key(v)
	if k == "" {
		return nil, nil
	}
	if code, ok := m.sex[k]; ok {
		return &code, nil
	}
	return nil, unknown("", "sex", "sex", v)
}

// Affected recodes a PED affected status: -9 and 0 are unknown, 1 is
// unaffected, 2 is affected.
func Affected(v string) (*bool, error) {
	switch strings.TrimSpace(v) {
	case "-9", "0":
		return nil, nil
	case "1":
		return domain.BoolPtr(false), nil
	case "2":
		return domain.BoolPtr(true), nil
	default:
		return nil, unknown("", "affected", "affected status", v)
	}
}

// Tissue recodes a partner tissue into the closed tissue lookup.
func (m *Mapper) Tissue(v string) (*string, error) {
	k := key(v)
	if k == "" {
		return nil, nil
	}
	if code, ok := m.tissue[k]; ok {
		return &code, nil
	}
	if code, ok := m.Known(domain.LookupTissueType, v); ok {
		return &code, nil
	}
	return nil, unknown(domain.LookupTissueType, "tissue_type", "tissue", v)
}

// Material recodes the sample material. An FFPE tissue forces TISSUE (FFPE)
// whatever the partner supplied.
func (m *Mapper) Material(material, tissue string) (*string, error) {
	if key(tissue) == "ffpe" {
		code := materialFFPE
		return &code, nil
	}
	k := key(material)
	if k == "" {
		return nil, nil
	}
	if code, ok := m.material[k]; ok {
		return &code, nil
	}
	return nil, unknown("", "sample_type", "material", material)
}

// LibraryLayout recodes PAIRED to "1" and SINGLE to "0".
func LibraryLayout(v string) (*string, error) {
	k := key(v)
	if k == "" {
		return nil, nil
	}
	if code, ok := layoutCodes[k]; ok {
		return &code, nil
	}
	return nil, unknown("", "library_layout", "library layout", v)
}

var ernSeparators = regexp.MustCompile(`[\s\-]+`)

func ernKey(v string) string {
	return ernSeparators.ReplaceAllString(strings.ToLower(strings.TrimSpace(v)), "_")
}

// ERN normalises an ERN value (lowercase, whitespace and hyphens to
// underscores) and resolves aliases and registered ids. not_applicable is null.
func (m *Mapper) ERN(v string) (*string, error) {
	k := ernKey(v)
	switch k {
	case "":
		return nil, nil
	case "not_applicable", "na", "n/a":
		return nil, nil
	}
	if code, ok := m.ern[k]; ok {
		return &code, nil
	}
	if code, ok := m.Known(domain.LookupERN, v); ok {
		return &code, nil
	}
	return nil, unknown(domain.LookupERN, "ERN", "ERN", v)
}

// Organisation resolves a partner organisation. Unknown names yield a lookup
// row to register (id: lower-case words joined by hyphens) and known=false.
func (m *Mapper) Organisation(v string) (lookup *domain.Lookup, known bool) {
	words := strings.Fields(v)
	if len(words) == 0 {
		return nil, true
	}
	label := strings.Join(words, " ")
	if id, ok := m.organisation[key(label)]; ok {
		l := domain.Lookup{Table: domain.LookupOrganisation, ID: id, Label: label}
		if canonical, ok := m.Known(domain.LookupOrganisation, id); ok {
			l.ID = canonical
		}
		return &l, true
	}
	id := strings.ToLower(strings.Join(words, "-"))
	if canonical, ok := m.Known(domain.LookupOrganisation, id); ok {
		return &domain.Lookup{Table: domain.LookupOrganisation, ID: canonical, Label: label}, true
	}
	return &domain.Lookup{Table: domain.LookupOrganisation, ID: id, Label: label}, false
}

// SeqType recodes a library strategy into the closed sequencing type lookup.
func (m *Mapper) SeqType(v string) (*string, error) {
	k := key(v)
	if k == "" {
		return nil, nil
	}
	if code, ok := m.seqType[k]; ok {
		return &code, nil
	}
	if code, ok := m.Known(domain.LookupSeqType, v); ok {
		return &code, nil
	}
	return nil, unknown(domain.LookupSeqType, "library_strategy", "seq type", v)
}

// FileFormat derives the file type from a file name, ignoring compression
// and encryption suffixes. Unknown extensions report the upper-case
// extension so it can be registered in the open file type lookup.
func (m *Mapper) FileFormat(name string) (string, error) {
	base := strings.ToLower(path.Base(strings.TrimSpace(name)))
	for _, suffix := range []string{".gpg", ".gz", ".bgz", ".bz2"} {
		base = strings.TrimSuffix(base, suffix)
	}
	ext := path.Ext(base)
	if ext == "" {
		return "", unknown("", "file_path", "file type", name)
	}
	if code, ok := fileFormats[ext]; ok {
		return code, nil
	}
	code := strings.ToUpper(strings.TrimPrefix(ext, "."))
	if known, ok := m.Known(domain.LookupFileType, code); ok {
		return known, nil
	}
	return "", unknown(domain.LookupFileType, "file_path", "file type", code)
}

// FileType resolves a partner-declared file type, falling back to the name.
func (m *Mapper) FileType(declared, name string) (string, error) {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return m.FileFormat(name)
	}
	if code, ok := fileFormats["."+strings.ToLower(declared)]; ok {
		return code, nil
	}
	if code, ok := m.Known(domain.LookupFileType, declared); ok {
		return code, nil
	}
	return "", unknown(domain.LookupFileType, "file_type", "file type", strings.ToUpper(declared))
}

// NormalizeCode rewrites HPO, Orphanet and OMIM prefixes into the
// underscore form used by the warehouse (HP:0001 -> HP_0001).
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	for _, p := range codePrefixes {
		if len(code) >= len(p.from) && strings.EqualFold(code[:len(p.from)], p.from) {
			return p.to + strings.TrimSpace(code[len(p.from):])
		}
	}
	return code
}

// Disease normalises a disease code and applies the replacement table.
// ok is false when the code is dropped.
func (m *Mapper) Disease(code string) (string, bool) {
	code = NormalizeCode(code)
	if code == "" {
		return "", false
	}
	if repl, ok := m.disease[code]; ok {
		return repl, repl != ""
	}
	return code, true
}

// Diseases maps a list of codes, dropping removed codes, sorted and de-duplicated.
func (m *Mapper) Diseases(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if mapped, ok := m.Disease(c); ok {
			out = append(out, mapped)
		}
	}
	return domain.SortedSet(out)
}

// Phenotype normalises an HPO code.
func Phenotype(code string) string { return NormalizeCode(code) }

func key(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func merge(dst, src map[string]string, norm func(string) string) {
	for k, v := range src {
		dst[norm(k)] = strings.TrimSpace(v)
	}
}
