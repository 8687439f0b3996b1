// Package models provides data structures and constants for the workstation
// fleet coordinator.
//
// This package contains the core domain entities driven by the coordinator:
//   - Tag / EngineType / Engine / Host: the inventory the scheduler places onto.
//   - Template: an immutable VM image descriptor, matched against a
//     reservation's requested tags.
//   - Workstation: a live or scheduled VM bound to exactly one reservation.
//   - ProxyMapping: a single-use resolvable token pointing at a workstation.
//   - Reservation: the top-level entity users create; owns its workstation
//     and current proxy mapping.
//
// All entities use UUIDv4 identifiers and are designed for relational
// persistence (see internal/store) and JSON serialization of their resource
// maps.
package models

import "time"

// ResourceMap is a dimension name (e.g. "cpu", "memory") to integer
// quantity. Arithmetic across ResourceMaps is always component-wise on the
// keys present in the template's resource_requirements; engines may carry
// additional dimensions a given template never consumes.
type ResourceMap map[string]int

// Add returns the component-wise sum of a and b.
func (a ResourceMap) Add(b ResourceMap) ResourceMap {
	sum := make(ResourceMap, len(a)+len(b))
	for k, v := range a {
		sum[k] += v
	}
	for k, v := range b {
		sum[k] += v
	}
	return sum
}

// Fits reports whether demand can be satisfied by capacity on every
// dimension demand names. Capacity dimensions demand does not name are
// ignored, per the intersection-of-keys arithmetic rule.
func (demand ResourceMap) Fits(capacity ResourceMap) bool {
	for k, v := range demand {
		if capacity[k] < v {
			return false
		}
	}
	return true
}

// Tag names a capability a Template advertises and a Reservation requests.
type Tag struct {
	ID   string
	Name string
}

// EngineType names a hypervisor flavor (e.g. "proxmox") a Template is
// compatible with.
type EngineType struct {
	ID   string
	Name string
}

// Engine is a running hypervisor node's JSON-RPC endpoint.
type Engine struct {
	ID                 string
	Name               string
	Port               int
	TypeID             string
	AvailableResources ResourceMap
	MaxResources       ResourceMap
	AdditionalInfoJSON string // free-form operator notes
}

// Host is the network location at which one or more Engines are reachable.
type Host struct {
	ID        string
	Name      string
	IPAddress string
	EngineIDs []string
}

// Endpoint returns the base URL at which e is reachable on h:
// http://host.ip:engine.port/api/v1.
func (h Host) Endpoint(e Engine) string {
	return "http://" + h.IPAddress + ":" + itoa(e.Port) + "/api/v1"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Template is an immutable VM image descriptor, identified on the wire by
// InternalName and in the scheduler by (ID, Tags).
type Template struct {
	ID                   string
	Name                 string
	InternalName         string
	Description          string
	AllowedEngineTypeIDs []string
	TagIDs               []string
	ResourceRequirements ResourceMap
}

// WorkstationStatus is the lifecycle state of a Workstation.
type WorkstationStatus string

const (
	WorkstationScheduled WorkstationStatus = "Scheduled"
	WorkstationSetup     WorkstationStatus = "Setup"
	WorkstationActive    WorkstationStatus = "Active"
	WorkstationRestart   WorkstationStatus = "Restart"
	WorkstationCleanup   WorkstationStatus = "Cleanup"
	WorkstationArchived  WorkstationStatus = "Archived"
	WorkstationBroken    WorkstationStatus = "Broken"
)

// Workstation is a live or scheduled VM bound to exactly one Reservation.
// EngineInternalName is unique among Workstations while Status is not
// Archived; transitions are driven only by the coordinator.
type Workstation struct {
	ID                 string
	IP                 string
	Port               int
	TemplateID         string
	HostID             string
	EngineID           string
	Status             WorkstationStatus
	EngineInternalName string
	LastStatusUpdate   time.Time
	BootStartedAt      time.Time
	BootCompletedAt    time.Time
}

// ProxyMapping is a single-use resolvable token pointing at a Workstation's
// ip:port. ExternalPath is always "/novnc/{id}".
type ProxyMapping struct {
	ID            string
	WorkstationID string
	ExternalPath  string
	CreatedAt     time.Time
	ArchivedAt    time.Time
	Archived      bool
	LookedUp      bool
}

// ReservationStatus is the lifecycle state of a Reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "Pending"
	ReservationApproved  ReservationStatus = "Approved"
	ReservationActive    ReservationStatus = "Active"
	ReservationCompleted ReservationStatus = "Completed"
	ReservationRejected  ReservationStatus = "Rejected"
	ReservationCancelled ReservationStatus = "Cancelled"
	ReservationBroken    ReservationStatus = "Broken"
)

// Terminal reports whether status is a terminal reservation state, after
// which no further coordinator-driven transition occurs.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationCompleted, ReservationRejected, ReservationCancelled:
		return true
	default:
		return false
	}
}

// MinReservationDuration is the minimum end_date - start_date the coordinator
// will admit.
const MinReservationDuration = 15 * time.Minute

// DefaultMappingPort is the VNC port assumed when a Workstation has no
// explicit Port set.
const DefaultMappingPort = 5900

// Reservation is created in Pending by the external web layer and mutated
// only by the coordinator thereafter, except for the user-initiated Cancel
// and Restart intents.
type Reservation struct {
	ID                 string
	Status             ReservationStatus
	RequestDate        time.Time
	StartDate          time.Time
	EndDate            time.Time
	UserID             string
	Username           string
	TemplateID         string
	WorkstationID      string // empty until admission
	ProxyMappingID     string // empty when no active mapping
	UserLabel          string
	LastStatusUpdate   time.Time
	AdditionalInfoJSON string
}

// Overlaps reports whether the closed [start,end] windows of r and other
// intersect, including the case where one's EndDate equals the other's
// StartDate.
func (r Reservation) Overlaps(other Reservation) bool {
	return !r.EndDate.Before(other.StartDate) && !other.EndDate.Before(r.StartDate)
}

// IsAPIPA reports whether ip falls in the 169.254.0.0/16 link-local
// auto-configuration range, indicating a VM without a real DHCP lease yet.
func IsAPIPA(ip string) bool {
	return len(ip) >= 8 && ip[:8] == "169.254."
}
