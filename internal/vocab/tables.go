package vocab

// Default mapping tables. Keys are normalised with key() unless noted.

var sexCodes = map[string]string{
	"1":                        "M",
	"m":                        "M",
	"male":                     "M",
	"assigned male at birth":   "M",
	"2":                        "F",
	"f":                        "F",
	"female":                   "F",
	"assigned female at birth": "F",
	"0":                        "U",
	"u":                        "U",
	"other":                    "U",
	"other_sex":                "U",
	"unknown":                  "U",
	"unknown_sex":              "U",
	"assigned other at birth":  "U",
}

var tissueAliases = map[string]string{
	"blood":       "Whole Blood",
	"whole blood": "Whole Blood",
	"ffpe":        "Tumor",
	"tumour":      "Tumor",
	"fibroblasts": "Cells - Cultured fibroblasts",
	"fibroblast":  "Cells - Cultured fibroblasts",
	"pbmc":        "Peripheral Blood Mononuclear Cells",
	"pbmcs":       "Peripheral Blood Mononuclear Cells",
}

var tissueTypes = []string{
	"Whole Blood",
	"Tumor",
	"Cells - Cultured fibroblasts",
	"Peripheral Blood Mononuclear Cells",
	"Muscle - Skeletal",
	"Skin",
	"Saliva",
	"Heart",
	"Liver",
}

const materialFFPE = "TISSUE (FFPE)"

var materialAliases = map[string]string{
	"total rna":       "RNA",
	"rna":             "RNA",
	"ffpe":            materialFFPE,
	"dna":             "DNA",
	"gdna":            "DNA",
	"cdna":            "cDNA",
	"tissue (ffpe)":   materialFFPE,
	"tissue (frozen)": "TISSUE (frozen)",
	"frozen tissue":   "TISSUE (frozen)",
}

var layoutCodes = map[string]string{
	"paired": "1",
	"single": "0",
}

// ERN aliases, keyed by the ern() normal form.
var ernAliases = map[string]string{
	"genturis":     "ERN-GENTURIS",
	"ern_genturis": "ERN-GENTURIS",
	"rnd":          "ERN-RND",
	"ern_rnd":      "ERN-RND",
	"euro_nmd":     "ERN-EURO-NMD",
	"euronmd":      "ERN-EURO-NMD",
	"nmd":          "ERN-EURO-NMD",
	"ern_euro_nmd": "ERN-EURO-NMD",
	"ern_nmd":      "ERN-EURO-NMD",
	"ithaca":       "ERN-ITHACA",
	"ern_ithaca":   "ERN-ITHACA",
}

var ernIDs = []string{"ERN-GENTURIS", "ERN-RND", "ERN-EURO-NMD", "ERN-ITHACA"}

var seqTypeAliases = map[string]string{
	"wes":     "WES",
	"wxs":     "WES",
	"exome":   "WES",
	"wgs":     "WGS",
	"genome":  "WGS",
	"rna-seq": "RNA-seq",
	"rnaseq":  "RNA-seq",
	"rna_seq": "RNA-seq",
}

var seqTypes = []string{"WES", "WGS", "RNA-seq"}

// fileFormats maps a lower-case extension (without compression or
// encryption suffixes) to a file type.
var fileFormats = map[string]string{
	".ped":   "PED",
	".json":  "JSON",
	".vcf":   "VCF",
	".fastq": "FASTQ",
	".fq":    "FASTQ",
	".bam":   "BAM",
	".bai":   "BAI",
	".cram":  "CRAM",
	".crai":  "CRAI",
}

var fileTypes = []string{"PED", "JSON", "VCF", "FASTQ", "BAM", "BAI", "CRAM", "CRAI"}

// Codes known to have migrated. An empty replacement drops the code.
var diseaseReplacements = map[string]string{
	"MIM_159000": "MIM_609200",
	"MIM_159001": "MIM_181350",
	"MIM_607569": "MIM_603689",
	"ORDO_856":   "",
}

// Code system prefixes, matched case-insensitively.
var codePrefixes = []struct {
	from string
	to   string
}{
	{"HP:", "HP_"},
	{"HPO:", "HP_"},
	{"Orphanet:", "ORDO_"},
	{"ORPHA:", "ORDO_"},
	{"ORDO:", "ORDO_"},
	{"OMIM:", "MIM_"},
	{"MIM:", "MIM_"},
}
