package main

// Default field sets per record kind. The -f flag overrides them; the
// transformation registry decides how each named field is displayed.
const (
	defaultIncidentFields = "id,assignee,title,status,created_at,service.summary"
	defaultAlertFields    = "status,created_at,service.summary,body.details"
	defaultUserFields     = "id,name,email,time_zone,role,job_title,teams"
	defaultTeamFields     = "id,summary,html_url"
	defaultServiceFields  = "id,name,description,status,created_at,updated_at,html_url"

	// defaultServiceStatuses hides maintenance and disabled services
	// unless asked for.
	defaultServiceStatuses = "active,warning,critical"

	// defaultSnoozeSeconds is four hours.
	defaultSnoozeSeconds = 14400
)
