package models

// RenderResult is the outcome of one logical render request. Exactly one of
// the two shapes is populated: Success with PDF, or a failure with Code and
// Error. Build it with NewSuccess or NewFailure.
type RenderResult struct {
	Success bool

	// PDF holds the document bytes on success.
	PDF []byte

	// Code and Error describe the failure.
	Code  string
	Error string

	// RetryCount is the number of failed attempts before the terminal outcome.
	RetryCount int

	// GenerationTimeMs is the end-to-end time spent in the pool.
	GenerationTimeMs int64
}

// NewSuccess builds the success variant.
func NewSuccess(pdf []byte, generationTimeMs int64, retryCount int) *RenderResult {
	return &RenderResult{
		Success:          true,
		PDF:              pdf,
		RetryCount:       retryCount,
		GenerationTimeMs: generationTimeMs,
	}
}

// NewFailure builds the failure variant.
func NewFailure(code, message string, retryCount int, generationTimeMs int64) *RenderResult {
	return &RenderResult{
		Code:             code,
		Error:            message,
		RetryCount:       retryCount,
		GenerationTimeMs: generationTimeMs,
	}
}

// RenderResponse is the JSON response for POST /api/v1/render. PDFBase64 is
// only set when the caller asked for a JSON body.
type RenderResponse struct {
	Success          bool         `json:"success"`
	PDFBase64        string       `json:"pdf_base64,omitempty"`
	GenerationTimeMs int64        `json:"generation_time_ms"`
	RetryCount       int          `json:"retry_count"`
	Error            *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the render worker pool.
type PoolStats struct {
	TotalWorkers   int           `json:"total_workers"`
	HealthyWorkers int           `json:"healthy_workers"`
	AverageAgeMs   int64         `json:"average_age_ms"`
	AverageUsage   float64       `json:"average_usage"`
	InFlight       int           `json:"in_flight"`
	MinPoolSize    int           `json:"min_pool_size"`
	MaxPoolSize    int           `json:"max_pool_size"`
	ShuttingDown   bool          `json:"shutting_down"`
	Workers        []WorkerStats `json:"workers"`
}

// WorkerStats is a point-in-time view of one worker.
type WorkerStats struct {
	ID       string `json:"id"`
	PID      int    `json:"pid"`
	Healthy  bool   `json:"healthy"`
	AgeMs    int64  `json:"age_ms"`
	Usage    int64  `json:"usage"`
	InFlight int    `json:"in_flight"`
}
