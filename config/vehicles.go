package config

// Known model vocabulary per make, used by the validator to reject
// hallucinated or garbled model names from extraction.

var ToyotaModels = []string{
	"4Runner", "bZ4X", "Camry", "Corolla", "Corolla Cross",
	"Crown", "GR86", "GR Corolla", "GR Supra", "Grand Highlander",
	"Highlander", "Land Cruiser", "Mirai", "Prius", "RAV4",
	"Sequoia", "Sienna", "Tacoma", "Tundra", "Venza",
}

var HondaModels = []string{
	"Accord", "Accord Hybrid", "Civic", "Civic Hybrid", "Civic Hatchback",
	"CR-V", "CR-V Hybrid", "HR-V", "Passport", "Pilot",
	"Prologue", "Ridgeline", "Odyssey", "Insight",
}

var TeslaModels = []string{
	"Model 3", "Model Y", "Model S", "Model X", "Cybertruck",
}

// AllModels is the combined vocabulary across supported makes.
var AllModels = concatModels(ToyotaModels, HondaModels, TeslaModels)

// ValidMakes are the manufacturers the system currently covers.
var ValidMakes = []string{"Toyota", "Honda", "Tesla"}

// OfferKeywords are indicators that a page actually carries offers.
// The model-assisted extractor requires MinOfferKeywords of these before
// spending tokens on a completion call.
var OfferKeywords = []string{
	"/mo", "/month", "per month", "monthly",
	"lease", "finance", "apr", "due at signing",
	"$2", "$3", "$4", "$5",
}

func concatModels(lists ...[]string) []string {
	var all []string
	for _, list := range lists {
		all = append(all, list...)
	}
	return all
}
