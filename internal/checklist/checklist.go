package checklist

import "strings"

// ItemSpec is one required or optional piece of evidence for a claim type.
// Static configuration: loaded once at process start, never mutated.
type ItemSpec struct {
	Key               string   `json:"key"`
	Title             string   `json:"title"`
	Required          bool     `json:"required"`
	DocType           string   `json:"doc_type,omitempty"`
	ClaimFields       []string `json:"claim_fields,omitempty"`
	AcceptExt         []string `json:"accept_extensions,omitempty"`
	MaxSizeMB         int64    `json:"max_size_mb"`
	Instruction       string   `json:"-"`
	AlternateDocTypes []string `json:"alternative_doc_types,omitempty"`
}

const defaultMaxSizeMB = 10

var motorChecklist = []ItemSpec{
	{
		Key:         "incident_date",
		Title:       "Date when the incident occurred",
		Required:    true,
		ClaimFields: []string{"incident_date"},
		Instruction: "Verify the incident date is provided and reasonable (not in future, within policy period)",
	},
	{
		Key:         "description",
		Title:       "Detailed description of what happened",
		Required:    true,
		ClaimFields: []string{"incident_description"},
		Instruction: "Check if description includes: what happened, where, how the damage occurred, other parties involved",
	},
	{
		Key:         "damage_photos",
		Title:       "Clear photos showing vehicle damage from multiple angles",
		Required:    true,
		DocType:     "motor_photos",
		AcceptExt:   []string{".jpg", ".jpeg", ".png", ".heic", ".webp"},
		Instruction: "Analyze if photos clearly show vehicle damage, are not blurry, show multiple angles, include license plate if visible",
	},
	{
		Key:               "repair_invoice",
		Title:             "Repair invoice, estimate, or quotation",
		DocType:           "repair_invoice",
		AcceptExt:         []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction:       "Verify document shows repair costs, labor, parts, is from legitimate repair shop",
		AlternateDocTypes: []string{"repair_estimate", "quotation"},
	},
	{
		Key:         "police_report",
		Title:       "Garda report or incident number (if applicable)",
		DocType:     "police_report",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Check if document is official police report with incident number, date, parties involved",
	},
	{
		Key:         "drivers_license",
		Title:       "Valid driver's license of the person driving",
		Required:    true,
		DocType:     "drivers_license",
		AcceptExt:   []string{".jpg", ".jpeg", ".png", ".pdf"},
		Instruction: "Verify license is valid, not expired, matches policy holder or authorized driver",
	},
}

var propertyChecklist = []ItemSpec{
	{
		Key:         "incident_date",
		Title:       "Date when the damage/loss occurred",
		Required:    true,
		ClaimFields: []string{"incident_date"},
		Instruction: "Verify incident date is provided and reasonable",
	},
	{
		Key:         "description",
		Title:       "Detailed description of what was damaged/lost and how",
		Required:    true,
		ClaimFields: []string{"incident_description"},
		Instruction: "Check description includes: what was damaged, cause of damage, extent of loss",
	},
	{
		Key:         "damage_photos",
		Title:       "Clear photos of property damage",
		Required:    true,
		DocType:     "home_photos",
		AcceptExt:   []string{".jpg", ".jpeg", ".png"},
		Instruction: "Analyze photos show clear damage to property, multiple angles, good lighting",
	},
	{
		Key:         "proof_ownership",
		Title:       "Proof of ownership (receipts, photos of items before damage)",
		Required:    true,
		DocType:     "proof_ownership",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Verify documents prove ownership of damaged items, show purchase dates and values",
	},
	{
		Key:         "repair_quotes",
		Title:       "Professional repair or replacement quotes",
		DocType:     "repair_quotes",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Check quotes are from legitimate contractors, include detailed breakdown of costs",
	},
	{
		Key:         "police_report",
		Title:       "Police report (for theft, vandalism, break-in)",
		DocType:     "police_report",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Verify official police report for criminal activity",
	},
}

var travelChecklist = []ItemSpec{
	{
		Key:         "trip_dates",
		Title:       "Travel dates and destination",
		Required:    true,
		ClaimFields: []string{"incident_date"},
		Instruction: "Verify travel dates are within policy coverage period",
	},
	{
		Key:         "itinerary",
		Title:       "Travel itinerary or booking confirmation",
		Required:    true,
		DocType:     "itinerary",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Check document shows confirmed bookings, dates, destinations, passenger names",
	},
	{
		Key:         "boarding_pass",
		Title:       "Boarding passes or flight tickets",
		Required:    true,
		DocType:     "boarding_pass",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Verify boarding passes match itinerary, show actual travel occurred",
	},
	{
		Key:         "description",
		Title:       "Detailed description of the incident",
		Required:    true,
		ClaimFields: []string{"incident_description"},
		Instruction: "Check description explains what happened, when, where, impact on travel",
	},
	{
		Key:         "receipts",
		Title:       "Receipts for additional expenses incurred",
		DocType:     "travel_receipts",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Verify receipts are legitimate, relate to travel disruption, show reasonable amounts",
	},
	{
		Key:         "pir",
		Title:       "Property Irregularity Report (for lost/delayed baggage)",
		DocType:     "pir",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Check PIR is official airline document with reference number",
	},
}

var healthChecklist = []ItemSpec{
	{
		Key:         "treatment_date",
		Title:       "Date of medical treatment",
		Required:    true,
		ClaimFields: []string{"incident_date"},
		Instruction: "Verify treatment date is within policy coverage period",
	},
	{
		Key:         "description",
		Title:       "Medical condition, symptoms, or reason for treatment",
		Required:    true,
		ClaimFields: []string{"incident_description"},
		Instruction: "Check description includes medical condition, symptoms, treatment needed",
	},
	{
		Key:         "medical_invoices",
		Title:       "Itemized medical bills and invoices",
		Required:    true,
		DocType:     "medical_invoices",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Verify invoices are from licensed medical providers, show detailed treatments and costs",
	},
	{
		Key:         "medical_referral",
		Title:       "Doctor's referral letter or prescription",
		DocType:     "referral",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Check referral is from qualified medical practitioner, relates to claimed treatment",
	},
	{
		Key:         "discharge_summary",
		Title:       "Hospital discharge summary (if applicable)",
		DocType:     "discharge",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Verify discharge summary shows dates, treatments, diagnosis",
	},
	{
		Key:         "membership_card",
		Title:       "Health insurance membership card or policy number",
		DocType:     "membership_card",
		AcceptExt:   []string{".pdf", ".jpg", ".jpeg", ".png"},
		Instruction: "Check membership card matches policy holder information",
	},
}

var checklists = map[string][]ItemSpec{
	"motor":    motorChecklist,
	"property": propertyChecklist,
	"travel":   travelChecklist,
	"health":   healthChecklist,
}

// ForClaimType returns the checklist for a claim type. Unknown types get an
// empty list: no requirements rather than an error.
func ForClaimType(claimType string) []ItemSpec {
	items := checklists[claimType]
	out := make([]ItemSpec, len(items))
	copy(out, items)
	for i := range out {
		if out[i].MaxSizeMB == 0 {
			out[i].MaxSizeMB = defaultMaxSizeMB
		}
	}
	return out
}

// ClaimTypes lists the claim types with a configured checklist.
func ClaimTypes() []string {
	return []string{"motor", "property", "travel", "health"}
}

// Accepts reports whether the item accepts a file extension (dot
// included, case-insensitive). An empty allow-list accepts anything.
func (i ItemSpec) Accepts(ext string) bool {
	if len(i.AcceptExt) == 0 {
		return true
	}
	ext = strings.ToLower(ext)
	for _, e := range i.AcceptExt {
		if e == ext {
			return true
		}
	}
	return false
}
