package bakery

// Payloads carried between the steps of the cake workflow.

type OvenSettings struct {
	DegreesCelsius   int  `json:"degreesCelsius"`
	ShelfNumber      int  `json:"shelfNumber"`
	UseSteamFunction bool `json:"useSteamFunction"`
}

type Ingredients struct {
	Items []string `json:"items"`
}

type SliceCake struct {
	Slices int `json:"slices"`
}
