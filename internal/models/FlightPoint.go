package models

// FlightPoint is one telemetry row of a route CSV. Values are kept exactly
// as the device wrote them.
type FlightPoint struct {
	ID      uint `gorm:"primaryKey" json:"-"`
	RouteID uint `gorm:"index:idx_route_seq,priority:1;not null" json:"-"`
	Seq     int  `gorm:"index:idx_route_seq,priority:2" json:"-"`

	FileName   string `gorm:"not null;index" json:"fileName"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	TimeStatus string `json:"timeStatus"`
	AEX        string `json:"aex"`
	Latitude   string `gorm:"not null" json:"latitude"`
	Longitude  string `gorm:"not null" json:"longitude"`
	Speed      string `json:"speed"`
	Course     string `json:"course"`
	Magn       string `json:"magn"`
	Altitude   string `json:"altitude"`
	SPP        string `json:"spp"`
	SRR        string `json:"srr"`
	MLux       string `json:"mLux"`
	RIr1       string `json:"rIr1"`
	GIr        string `json:"gIr"`
	RIr2       string `json:"rIr2"`
	IIr        string `json:"iIr"`
	IBright    string `json:"iBright"`
	Shutter    string `json:"shutter"`
	Gain       string `json:"gain"`

	PhotoObjectKey string `json:"photoObjectKey,omitempty"`
	HasPhoto       bool   `gorm:"default:false" json:"hasPhoto"`
}
