package model

const AnycastTTL = 60

// Decision is the node chosen to answer for one location. An empty NodeID
// means no eligible node exists for it.
type Decision struct {
	LocationCode  string   `json:"locationCode"`
	NodeID        string   `json:"nodeId,omitempty"`
	NodeName      string   `json:"nodeName,omitempty"`
	NodeIP        string   `json:"nodeIp,omitempty"`
	IsDirect      bool     `json:"isDirect"`
	IsLastResort  bool     `json:"isLastResort"`
	DistanceKm    *float64 `json:"distanceKm"`
	DistanceScore float64  `json:"distanceScore"`
}

func (d Decision) Covered() bool {
	return d.NodeID != ""
}

// AnycastRecord is the distributable form of a decision.
type AnycastRecord struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Value        *string  `json:"value"`
	TTL          int      `json:"ttl"`
	LocationCode string   `json:"locationCode"`
	NodeID       string   `json:"nodeId,omitempty"`
	NodeName     string   `json:"nodeName,omitempty"`
	Distance     float64  `json:"distance"`
	DistanceKm   *float64 `json:"distanceKm"`
	IsDirect     bool     `json:"isDirect"`
	IsLastResort bool     `json:"isLastResort"`
	Description  string   `json:"description,omitempty"`
	Error        string   `json:"error,omitempty"`
}
