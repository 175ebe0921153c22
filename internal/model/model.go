// Package model defines the wire and domain types exchanged with the
// oceanographic analysis service.
package model

import (
	"encoding/json"
	"time"
)

// Dataset describes a dataset registered with the analysis service.
type Dataset struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	FileFormat  string   `json:"fileFormat" yaml:"fileFormat"`
	Variables   []string `json:"variables" yaml:"variables"`
}

// Credentials is an optional username/password pair for a THREDDS server.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"-"`
}

// Server is a configured THREDDS data server.
type Server struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	BaseURL     string       `json:"baseUrl" yaml:"baseUrl"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Credentials *Credentials `json:"credentials,omitempty" yaml:"credentials,omitempty"`
}

// ServerConfig is the body of an add or replace request. It carries no ID;
// the service assigns one.
type ServerConfig struct {
	Name        string       `json:"name" validate:"required"`
	BaseURL     string       `json:"baseUrl" validate:"required,absurl"`
	Description string       `json:"description,omitempty"`
	Credentials *Credentials `json:"credentials,omitempty"`
}

// Node is one entry of a server's hierarchical catalog.
type Node struct {
	Name        string `json:"name" yaml:"name"`
	Path        string `json:"path" yaml:"path"`
	IsDirectory bool   `json:"isDirectory" yaml:"isDirectory"`
}

// Variable describes one variable of a dataset.
type Variable struct {
	Name     string `json:"name" yaml:"name"`
	Units    string `json:"units,omitempty" yaml:"units,omitempty"`
	LongName string `json:"longName,omitempty" yaml:"longName,omitempty"`
}

// UnmarshalJSON accepts either a bare variable name or an object.
func (v *Variable) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*v = Variable{Name: name}
		return nil
	}
	type variableAlias Variable
	var alias variableAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*v = Variable(alias)
	return nil
}

// Coverage is the temporal and spatial extent of a dataset.
type Coverage struct {
	TimeStart string   `json:"timeStart,omitempty" yaml:"timeStart,omitempty"`
	TimeEnd   string   `json:"timeEnd,omitempty" yaml:"timeEnd,omitempty"`
	North     *float64 `json:"north,omitempty" yaml:"north,omitempty"`
	South     *float64 `json:"south,omitempty" yaml:"south,omitempty"`
	East      *float64 `json:"east,omitempty" yaml:"east,omitempty"`
	West      *float64 `json:"west,omitempty" yaml:"west,omitempty"`
}

// DatasetMetadata is the descriptive metadata of a catalog leaf.
type DatasetMetadata struct {
	Path      string     `json:"path" yaml:"path"`
	Format    string     `json:"format" yaml:"format"`
	Variables []Variable `json:"variables" yaml:"variables"`
	Coverage  Coverage   `json:"coverage" yaml:"coverage"`
}

// VariableNames returns the names of all variables in declaration order.
func (m *DatasetMetadata) VariableNames() []string {
	names := make([]string, 0, len(m.Variables))
	for _, v := range m.Variables {
		names = append(names, v.Name)
	}
	return names
}

// Role is a user's authorization role.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleDataManager Role = "data_manager"
	RoleDataAnalyst Role = "data_analyst"
	RoleViewer      Role = "viewer"
)

// User is an authenticated account.
type User struct {
	ID       string `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	FullName string `json:"fullName,omitempty" yaml:"fullName,omitempty"`
	Role     Role   `json:"role" yaml:"role"`
}

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Timestamp returns a pointer to t, or nil when t is zero.
func Timestamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
