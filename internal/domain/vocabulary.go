package domain

import "strings"

// The source feeds carry commodity and stage labels with no enforced
// vocabulary (casing and synonyms vary by filer). These closed enumerations
// are applied at the persistence boundary so free-text variants never reach
// the store.

// Commodity is the primary commodity of a project or report.
type Commodity string

const (
	CommodityGold      Commodity = "gold"
	CommoditySilver    Commodity = "silver"
	CommodityCopper    Commodity = "copper"
	CommodityLithium   Commodity = "lithium"
	CommodityUranium   Commodity = "uranium"
	CommodityNickel    Commodity = "nickel"
	CommodityZinc      Commodity = "zinc"
	CommodityIron      Commodity = "iron"
	CommodityCoal      Commodity = "coal"
	CommodityPotash    Commodity = "potash"
	CommodityRareEarth Commodity = "rare_earth"
	CommodityOther     Commodity = "other"
)

var commodityAliases = map[string]Commodity{
	"gold":                CommodityGold,
	"au":                  CommodityGold,
	"silver":              CommoditySilver,
	"ag":                  CommoditySilver,
	"copper":              CommodityCopper,
	"cu":                  CommodityCopper,
	"lithium":             CommodityLithium,
	"li":                  CommodityLithium,
	"uranium":             CommodityUranium,
	"u3o8":                CommodityUranium,
	"nickel":              CommodityNickel,
	"zinc":                CommodityZinc,
	"iron":                CommodityIron,
	"iron ore":            CommodityIron,
	"coal":                CommodityCoal,
	"potash":              CommodityPotash,
	"rare earth":          CommodityRareEarth,
	"rare earths":         CommodityRareEarth,
	"rare earth elements": CommodityRareEarth,
	"ree":                 CommodityRareEarth,
}

// NormalizeCommodity maps free-text commodity labels onto the closed
// vocabulary. Unknown inputs collapse to CommodityOther.
func NormalizeCommodity(s string) Commodity {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return CommodityOther
	}
	if c, ok := commodityAliases[key]; ok {
		return c
	}
	return CommodityOther
}

// ProjectStage is the development stage of a mining project.
type ProjectStage string

const (
	StageExploration    ProjectStage = "exploration"
	StagePEA            ProjectStage = "pea"
	StagePrefeasibility ProjectStage = "prefeasibility"
	StageFeasibility    ProjectStage = "feasibility"
	StageDevelopment    ProjectStage = "development"
	StageProduction     ProjectStage = "production"
	StageUnknown        ProjectStage = "unknown"
)

var stageAliases = map[string]ProjectStage{
	"exploration":                     StageExploration,
	"pea":                             StagePEA,
	"preliminary economic assessment": StagePEA,
	"scoping":                         StagePEA,
	"prefeasibility":                  StagePrefeasibility,
	"pre-feasibility":                 StagePrefeasibility,
	"pfs":                             StagePrefeasibility,
	"feasibility":                     StageFeasibility,
	"fs":                              StageFeasibility,
	"definitive feasibility":          StageFeasibility,
	"development":                     StageDevelopment,
	"construction":                    StageDevelopment,
	"production":                      StageProduction,
	"operating":                       StageProduction,
}

// NormalizeStage maps free-text stage labels onto the closed vocabulary.
func NormalizeStage(s string) ProjectStage {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return StageUnknown
	}
	if st, ok := stageAliases[key]; ok {
		return st
	}
	return StageUnknown
}
