package vies

// CheckResponse is the JSON body returned by the VIES check endpoint.
type CheckResponse struct {
	IsValid     bool   `json:"isValid"`
	UserError   string `json:"userError,omitempty"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
	RequestDate string `json:"requestDate,omitempty"`
	VATNumber   string `json:"vatNumber,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
}

// wireResponse keeps isValid optional so a body without it can be rejected.
type wireResponse struct {
	IsValid     *bool  `json:"isValid"`
	UserError   string `json:"userError"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	RequestDate string `json:"requestDate"`
	VATNumber   string `json:"vatNumber"`
	CountryCode string `json:"countryCode"`
}

// VIES userError values that carry no failure information.
const (
	userErrorValid   = "VALID"
	userErrorInvalid = "INVALID"
)

// VIES hides company details behind this placeholder.
const hiddenPlaceholder = "---"

func (w wireResponse) toCheckResponse() *CheckResponse {
	resp := &CheckResponse{
		IsValid:     *w.IsValid,
		UserError:   w.UserError,
		Name:        w.Name,
		Address:     w.Address,
		RequestDate: w.RequestDate,
		VATNumber:   w.VATNumber,
		CountryCode: w.CountryCode,
	}
	if resp.Name == hiddenPlaceholder {
		resp.Name = ""
	}
	if resp.Address == hiddenPlaceholder {
		resp.Address = ""
	}
	return resp
}
