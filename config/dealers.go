package config

// DealerSource describes one registry entry: where to fetch a dealer's
// specials page and which template, if any, is known to apply. The core
// only reads this list; it is owned by configuration.
type DealerSource struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Make        string `json:"make"`
	SpecialsURL string `json:"specials_url"`
	City        string `json:"city"`
	Platform    string `json:"platform"`
}

// DealerRegistry is the ordered list of dealer sources for ingestion.
// Grouped by platform for easier maintenance.
var DealerRegistry = []DealerSource{
	// Platform: Octane
	{
		Name:        "Longo Toyota",
		Slug:        "longo-toyota",
		Make:        "Toyota",
		SpecialsURL: "https://www.longotoyota.com/new-toyota-specials-los-angeles.html",
		City:        "El Monte",
		Platform:    "octane",
	},

	// Platform: DealerOn / Gemini
	{
		Name:        "Toyota of Downtown LA",
		Slug:        "toyota-downtown-la",
		Make:        "Toyota",
		SpecialsURL: "https://www.toyotaofdowntownla.com/new-vehicle-specials/",
		City:        "Los Angeles",
		Platform:    "dealeron_gemini",
	},
	{
		Name:        "North Hollywood Toyota",
		Slug:        "north-hollywood-toyota",
		Make:        "Toyota",
		SpecialsURL: "https://www.northhollywoodtoyota.com/new-vehicle-specials/",
		City:        "North Hollywood",
		Platform:    "dealeron_gemini",
	},

	// Platform: DealerInspire
	{
		Name:        "Culver City Toyota",
		Slug:        "culver-city-toyota",
		Make:        "Toyota",
		SpecialsURL: "https://www.culvercitytoyota.com/new-vehicles/new-vehicle-specials/",
		City:        "Culver City",
		Platform:    "dealerinspire",
	},
	{
		Name:        "AutoNation Toyota Cerritos",
		Slug:        "autonation-toyota-cerritos",
		Make:        "Toyota",
		SpecialsURL: "https://www.autonationtoyotacerritos.com/toyota-specials.htm",
		City:        "Cerritos",
		Platform:    "dealerinspire",
	},
	{
		Name:        "Airport Marina Honda",
		Slug:        "airport-marina-honda",
		Make:        "Honda",
		SpecialsURL: "https://www.airportmarinahonda.com/new-vehicle-specials-2/",
		City:        "Los Angeles",
		Platform:    "dealerinspire",
	},
	{
		Name:        "Galpin Honda",
		Slug:        "galpin-honda",
		Make:        "Honda",
		SpecialsURL: "https://www.galpinhonda.com/new-specials/",
		City:        "Mission Hills",
		Platform:    "dealerinspire",
	},
	{
		Name:        "Goudy Honda",
		Slug:        "goudy-honda",
		Make:        "Honda",
		SpecialsURL: "https://www.goudyhonda.com/new-vehicles/new-vehicle-specials/",
		City:        "Alhambra",
		Platform:    "dealerinspire",
	},
	{
		Name:        "Norm Reeves Honda Cerritos",
		Slug:        "norm-reeves-honda-cerritos",
		Make:        "Honda",
		SpecialsURL: "https://www.normreeveshondacerritos.com/new-vehicles/new-vehicle-specials/",
		City:        "Cerritos",
		Platform:    "dealerinspire",
	},

	// No recognized template - model-assisted extraction only
	{
		Name:        "Scott Robinson Honda",
		Slug:        "scott-robinson-honda",
		Make:        "Honda",
		SpecialsURL: "https://scottrobinsonhonda.com/offers/",
		City:        "Torrance",
		Platform:    "unknown",
	},
	{
		Name:        "Carson Honda",
		Slug:        "carson-honda",
		Make:        "Honda",
		SpecialsURL: "https://www.carsonhonda.net/promotions/new/index.htm",
		City:        "Carson",
		Platform:    "unknown",
	},
}
