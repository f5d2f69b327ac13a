package models

// Role is the caller's platform role as asserted by the auth layer.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Caller is the authenticated identity handed to the video service.
type Caller struct {
	UserID    string `json:"userId"`
	Role      Role   `json:"role"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// AccessAction is the operation an access decision was made for.
type AccessAction string

const (
	ActionPlayback  AccessAction = "playback"
	ActionDownload  AccessAction = "download"
	ActionUpload    AccessAction = "upload"
	ActionDelete    AccessAction = "delete"
	ActionAnalytics AccessAction = "analytics"
)

// AccessLogEntry records an authorization decision on a video resource.
type AccessLogEntry struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty"`

	UserID        string            `dynamodbav:"user_id" json:"userId"`
	UserRole      Role              `dynamodbav:"user_role" json:"userRole"`
	Resource      string            `dynamodbav:"resource" json:"resource"`
	RequiredRole  Role              `dynamodbav:"required_role,omitempty" json:"requiredRole,omitempty"`
	Action        AccessAction      `dynamodbav:"action" json:"action"`
	AccessGranted bool              `dynamodbav:"access_granted" json:"accessGranted"`
	IPAddress     string            `dynamodbav:"ip_address,omitempty" json:"ipAddress,omitempty"`
	UserAgent     string            `dynamodbav:"user_agent,omitempty" json:"userAgent,omitempty"`
	Metadata      map[string]string `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt     string            `dynamodbav:"created_at" json:"createdAt"`
}

// Enrollment links a user to a course for playback authorization.
type Enrollment struct {
	PK string `dynamodbav:"pk"`
	SK string `dynamodbav:"sk"`

	UserID     string `dynamodbav:"user_id" json:"userId"`
	CourseID   string `dynamodbav:"course_id" json:"courseId"`
	Active     bool   `dynamodbav:"active" json:"active"`
	EnrolledAt string `dynamodbav:"enrolled_at" json:"enrolledAt"`
}

// Course carries the ownership fields the video service reads.
type Course struct {
	PK     string `dynamodbav:"pk"`
	SK     string `dynamodbav:"sk"`
	GSI1PK string `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK string `dynamodbav:"gsi1sk,omitempty"`

	ID        string `dynamodbav:"course_id" json:"courseId"`
	Title     string `dynamodbav:"title,omitempty" json:"title,omitempty"`
	CreatedBy string `dynamodbav:"created_by" json:"createdBy"`
}
