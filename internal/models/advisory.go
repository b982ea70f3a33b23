package models

// AdvisoryRequest is the validated body of POST /analyze
type AdvisoryRequest struct {
	City        string `json:"city"`
	AQI         int    `json:"aqi"`
	UserProfile string `json:"user_profile"`
}

// AdvisoryResponse is returned by POST /analyze
type AdvisoryResponse struct {
	City               string `json:"city"`
	AQI                int    `json:"aqi"`
	Category           string `json:"category"`
	Icon               string `json:"icon"`
	HealthImplications string `json:"health_implications"`
	GeneralAdvice      string `json:"general_advice"`
	SensitiveGroups    string `json:"sensitive_groups"`
	OutdoorActivities  string `json:"outdoor_activities"`
	ProtectiveMeasures string `json:"protective_measures"`
	MaskRecommendation string `json:"mask_recommendation"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ValidationError is a request problem reported to the caller as 400
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
