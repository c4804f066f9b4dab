package tracking

// Route identifies the handling path for an inbound tracking payload.
type Route int

const (
	RouteCustomEvent Route = iota + 1
	RouteLinkClick
	RoutePageView
)

// Payload is the decoded body of a collection request.
type Payload struct {
	TrackingID   string                 `json:"tracking_id"`
	SessionID    string                 `json:"session_id"`
	PageURL      string                 `json:"page_url"`
	PageTitle    string                 `json:"page_title"`
	Referrer     string                 `json:"referrer"`
	ScreenWidth  int                    `json:"screen_width"`
	ScreenHeight int                    `json:"screen_height"`
	Language     string                 `json:"language"`
	EventType    string                 `json:"event_type"`
	LinkURL      string                 `json:"link_url"`
	LinkText     string                 `json:"link_text"`
	LinkType     string                 `json:"link_type"`
	EventName    string                 `json:"event_name"`
	EventData    map[string]interface{} `json:"event_data"`
	IsUnload     bool                   `json:"is_unload"`
}

// ValidationError is a payload validation failure with a caller-facing message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// RouteFor decides which handling path a payload takes. Precedence is
// load-bearing: a payload carrying both event_name and page_url is recorded
// only as a custom event, never as a page view.
func RouteFor(p *Payload) (Route, error) {
	if p.EventName != "" {
		return RouteCustomEvent, nil
	}

	if p.EventType == "link_click" {
		if p.LinkURL == "" || p.LinkType == "" {
			return 0, NewValidationError("Missing link click data")
		}
		if p.LinkType != LinkTypeOutbound && p.LinkType != LinkTypeFileDownload {
			return 0, NewValidationError("Invalid link type")
		}
		return RouteLinkClick, nil
	}

	if p.PageURL == "" {
		return 0, NewValidationError("Missing page_url")
	}
	return RoutePageView, nil
}
