package entity

// HealthCheckResponse is the health endpoint body.
type HealthCheckResponse struct {
	Status  bool                    `json:"status" example:"true"`
	Message string                  `json:"message" example:"success"`
	Version string                  `json:"version" example:"0.1.0"`
	Checks  HealthCheckResponseData `json:"checks"`
}

type HealthCheckResponseData struct {
	Database HealthCheckItem `json:"database"`
	Kafka    HealthCheckItem `json:"kafka"`
}

type HealthCheckItem struct {
	Status bool   `json:"status" example:"true"`
	Type   string `json:"type" example:"postgresql"`
	Error  string `json:"error,omitempty" example:"Database connection failed"`
}
