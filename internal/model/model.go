package model

import "time"

// Role determines which screens an actor can reach.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Actor is an authenticated user.
type Actor struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	HasFace     bool   `json:"has_face"` // face registered on the server
}

// Course is a teacher-scoped, read-only course projection.
type Course struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Code             string `json:"code"`
	EnrolledCount    int    `json:"enrolled_count"`
	HasActiveSession bool   `json:"has_active_session"`
	TeacherName      string `json:"teacher_name,omitempty"`
}

// Participant is one student who joined a session.
type Participant struct {
	Name         string `json:"name"`
	JoinedAt     string `json:"joined_at"` // HH:MM as reported by the server
	FaceVerified bool   `json:"face_verified"`
}

// Session is an attendance-taking event for one course.
type Session struct {
	ID               int64         `json:"id"`
	CourseID         int64         `json:"course_id"`
	CourseName       string        `json:"course_name"`
	StartedAt        time.Time     `json:"started_at"`
	Active           bool          `json:"active"`
	ParticipantCount int           `json:"participant_count"`
	Participants     []Participant `json:"participants"`
}

// Membership is the student view of an active session.
type Membership struct {
	SessionID   int64     `json:"session_id"`
	CourseID    int64     `json:"course_id"`
	CourseName  string    `json:"course_name"`
	CourseCode  string    `json:"course_code"`
	TeacherName string    `json:"teacher_name"`
	StartedAt   time.Time `json:"started_at"`
	HasJoined   bool      `json:"has_joined"`
}

// JoinOutcome is the server's answer to a successful join.
type JoinOutcome struct {
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}

// StartOutcome is the server's answer to a successful start-attendance.
type StartOutcome struct {
	Message   string `json:"message"`
	SessionID int64  `json:"session_id"`
}

// EndOutcome is the server's answer to a successful end-attendance.
type EndOutcome struct {
	Message          string `json:"message"`
	ParticipantCount int    `json:"participant_count"`
}

// FaceStats is the face demo API's status snapshot.
type FaceStats struct {
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	RegisteredFaces int      `json:"registered_faces"`
	UniquePeople    int      `json:"unique_people"`
	People          []string `json:"people"`
}

// Recognition is the result of a face demo recognize call.
type Recognition struct {
	Recognized bool    `json:"recognized"`
	Name       string  `json:"name,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Message    string  `json:"message"`
}

// PersonSamples is one entry of the face demo gallery listing.
type PersonSamples struct {
	Name        string `json:"name"`
	SampleCount int    `json:"sample_count"`
}
