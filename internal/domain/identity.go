// Package domain defines the core domain models for the collaboration server.
package domain

// Identity is the resolved identity of a connected client. The zero value
// is the anonymous identity assigned when no valid credential is presented.
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// Anonymous reports whether the identity belongs to an unauthenticated client.
// Anonymous clients may observe a diagram but never edit it.
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

// ConnectedUser describes one user currently connected to a diagram room,
// in the shape the frontend renders in its presence list.
type ConnectedUser struct {
	ID          string `json:"id"`
	Name        string `json:"nombre"`
	Email       string `json:"correo"`
	ConnectedAt string `json:"fecha_conexion"`
}

// DiagramAccess holds the stored access rows for one diagram: its owner
// plus the users invited as collaborators.
type DiagramAccess struct {
	DiagramID     string
	OwnerID       string
	Collaborators []string
}
