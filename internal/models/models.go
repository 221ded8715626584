package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StringArray is an alias for pq.StringArray to handle PostgreSQL arrays
type StringArray = pq.StringArray

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

type Organization struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Settings  JSONB     `json:"settings,omitempty" db:"settings"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type AISystem struct {
	ID                  uuid.UUID        `json:"id" db:"id"`
	OrganizationID      uuid.UUID        `json:"organization_id" db:"organization_id"`
	Name                string           `json:"name" db:"name"`
	BusinessPurpose     string           `json:"business_purpose" db:"business_purpose"`
	Description         string           `json:"description,omitempty" db:"description"`
	TechnicalApproach   string           `json:"technical_approach,omitempty" db:"technical_approach"`
	PrimaryUsers        StringArray      `json:"primary_users" db:"primary_users"`
	DeploymentStatus    DeploymentStatus `json:"deployment_status" db:"deployment_status"`
	DeploymentDate      *time.Time       `json:"deployment_date,omitempty" db:"deployment_date"`
	DataCategories      StringArray      `json:"data_categories" db:"data_categories"`
	ThirdPartyProviders StringArray      `json:"third_party_providers" db:"third_party_providers"`
	CreatedBy           *uuid.UUID       `json:"created_by,omitempty" db:"created_by"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`

	// Populated by list queries that join the classification and gap assessment.
	RiskCategory *RiskCategory `json:"risk_category,omitempty" db:"risk_category"`
	GapScore     *float64      `json:"gap_score,omitempty" db:"gap_score"`
}

// RiskClassification is written once per system and never edited in place.
type RiskClassification struct {
	ID                     uuid.UUID    `json:"id" db:"id"`
	AISystemID             uuid.UUID    `json:"ai_system_id" db:"ai_system_id"`
	Category               RiskCategory `json:"category" db:"category"`
	ProhibitedPractices    StringArray  `json:"prohibited_practices" db:"prohibited_practices"`
	HighRiskCategories     StringArray  `json:"high_risk_categories" db:"high_risk_categories"`
	InteractsWithPersons   bool         `json:"interacts_with_persons" db:"interacts_with_persons"`
	Reasoning              string       `json:"reasoning" db:"reasoning"`
	ApplicableRequirements StringArray  `json:"applicable_requirements" db:"applicable_requirements"`
	ClassifiedBy           *uuid.UUID   `json:"classified_by,omitempty" db:"classified_by"`
	CreatedAt              time.Time    `json:"created_at" db:"created_at"`
}

// GapAssessment.OverallScore is derived from its requirements and is only
// ever written by the store's recompute path.
type GapAssessment struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	AISystemID       uuid.UUID  `json:"ai_system_id" db:"ai_system_id"`
	OverallScore     float64    `json:"overall_score" db:"overall_score"`
	LastAssessedDate *time.Time `json:"last_assessed_date,omitempty" db:"last_assessed_date"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`

	Requirements []RequirementAssessment `json:"requirements,omitempty" db:"-"`
}

type RequirementAssessment struct {
	ID                  uuid.UUID           `json:"id" db:"id"`
	GapAssessmentID     uuid.UUID           `json:"gap_assessment_id" db:"gap_assessment_id"`
	Category            RequirementCategory `json:"category" db:"category"`
	Title               string              `json:"title" db:"title"`
	Description         string              `json:"description" db:"description"`
	RegulatoryReference string              `json:"regulatory_reference" db:"regulatory_reference"`
	Status              RequirementStatus   `json:"status" db:"status"`
	Priority            Priority            `json:"priority" db:"priority"`
	Notes               string              `json:"notes,omitempty" db:"notes"`
	AssignedTo          string              `json:"assigned_to,omitempty" db:"assigned_to"`
	DueDate             *time.Time          `json:"due_date,omitempty" db:"due_date"`
	Position            int                 `json:"position" db:"position"`
	UpdatedBy           *uuid.UUID          `json:"updated_by,omitempty" db:"updated_by"`
	CreatedAt           time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at" db:"updated_at"`

	Evidence []Evidence `json:"evidence,omitempty" db:"-"`
}

// Applicable reports whether the requirement counts toward compliance scores.
func (r RequirementAssessment) Applicable() bool {
	return r.Status != StatusNotApplicable
}

type Evidence struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	RequirementID uuid.UUID    `json:"requirement_id" db:"requirement_id"`
	Type          EvidenceType `json:"type" db:"type"`
	Title         string       `json:"title" db:"title"`
	Description   string       `json:"description,omitempty" db:"description"`
	TextContent   *string      `json:"text_content,omitempty" db:"text_content"`
	FileURL       *string      `json:"file_url,omitempty" db:"file_url"`
	LinkURL       *string      `json:"link_url,omitempty" db:"link_url"`
	UploadedBy    *uuid.UUID   `json:"uploaded_by,omitempty" db:"uploaded_by"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

var (
	ErrEvidenceType    = errors.New("unknown evidence type")
	ErrEvidenceContent = errors.New("evidence must carry exactly one content field matching its type")
)

// Validate checks that exactly one of the content fields is set and that it
// is the one the evidence type calls for.
func (e *Evidence) Validate() error {
	if !e.Type.Valid() {
		return ErrEvidenceType
	}
	set := func(s *string) bool { return s != nil && strings.TrimSpace(*s) != "" }

	populated := 0
	for _, s := range []*string{e.TextContent, e.FileURL, e.LinkURL} {
		if set(s) {
			populated++
		}
	}
	if populated != 1 {
		return ErrEvidenceContent
	}

	switch e.Type {
	case EvidenceText:
		if !set(e.TextContent) {
			return ErrEvidenceContent
		}
	case EvidenceFile:
		if !set(e.FileURL) {
			return ErrEvidenceContent
		}
	case EvidenceLink:
		if !set(e.LinkURL) {
			return ErrEvidenceContent
		}
	}
	return nil
}

type RiskRegister struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	AISystemID       uuid.UUID  `json:"ai_system_id" db:"ai_system_id"`
	LastAssessedDate *time.Time `json:"last_assessed_date,omitempty" db:"last_assessed_date"`
	AssessedBy       *uuid.UUID `json:"assessed_by,omitempty" db:"assessed_by"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`

	Risks []Risk `json:"risks,omitempty" db:"-"`
}

// Risk carries user-entered likelihood/impact pairs alongside the scores
// derived from them. The derived fields are recomputed on every write.
type Risk struct {
	ID                     uuid.UUID          `json:"id" db:"id"`
	RiskRegisterID         uuid.UUID          `json:"risk_register_id" db:"risk_register_id"`
	Title                  string             `json:"title" db:"title"`
	Type                   RiskType           `json:"type" db:"type"`
	Description            string             `json:"description" db:"description"`
	AffectedStakeholders   StringArray        `json:"affected_stakeholders" db:"affected_stakeholders"`
	PotentialImpact        string             `json:"potential_impact" db:"potential_impact"`
	Likelihood             int                `json:"likelihood" db:"likelihood"`
	Impact                 int                `json:"impact" db:"impact"`
	InherentRiskScore      int                `json:"inherent_risk_score" db:"inherent_risk_score"`
	RiskLevel              RiskLevel          `json:"risk_level" db:"risk_level"`
	TreatmentDecision      *TreatmentDecision `json:"treatment_decision,omitempty" db:"treatment_decision"`
	TreatmentJustification string             `json:"treatment_justification,omitempty" db:"treatment_justification"`
	ResidualLikelihood     *int               `json:"residual_likelihood,omitempty" db:"residual_likelihood"`
	ResidualImpact         *int               `json:"residual_impact,omitempty" db:"residual_impact"`
	ResidualRiskScore      *int               `json:"residual_risk_score,omitempty" db:"residual_risk_score"`
	ResidualRiskLevel      *RiskLevel         `json:"residual_risk_level,omitempty" db:"residual_risk_level"`
	Position               int                `json:"position" db:"position"`
	CreatedBy              *uuid.UUID         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt              time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at" db:"updated_at"`

	MitigationActions []MitigationAction `json:"mitigation_actions,omitempty" db:"-"`
}

// HasActiveMitigation reports whether any mitigation action is not cancelled.
func (r Risk) HasActiveMitigation() bool {
	for _, a := range r.MitigationActions {
		if a.Status != ActionCancelled {
			return true
		}
	}
	return false
}

type MitigationAction struct {
	ID                  uuid.UUID    `json:"id" db:"id"`
	RiskID              uuid.UUID    `json:"risk_id" db:"risk_id"`
	Description         string       `json:"description" db:"description"`
	ResponsibleParty    string       `json:"responsible_party" db:"responsible_party"`
	DueDate             *time.Time   `json:"due_date,omitempty" db:"due_date"`
	Status              ActionStatus `json:"status" db:"status"`
	CompletionDate      *time.Time   `json:"completion_date,omitempty" db:"completion_date"`
	EffectivenessRating *int         `json:"effectiveness_rating,omitempty" db:"effectiveness_rating"`
	Notes               string       `json:"notes,omitempty" db:"notes"`
	CreatedAt           time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at" db:"updated_at"`
}

// TransitionTo moves the action to status. The completion date is stamped
// the first time the action becomes COMPLETED and is kept from then on.
func (a *MitigationAction) TransitionTo(status ActionStatus, now time.Time) {
	a.Status = status
	if status == ActionCompleted && a.CompletionDate == nil {
		t := now
		a.CompletionDate = &t
	}
}

// Overdue reports whether the action is still open past its due date.
func (a MitigationAction) Overdue(now time.Time) bool {
	if a.DueDate == nil {
		return false
	}
	if a.Status == ActionCompleted || a.Status == ActionCancelled {
		return false
	}
	return a.DueDate.Before(now)
}

type Governance struct {
	ID         uuid.UUID `json:"id" db:"id"`
	AISystemID uuid.UUID `json:"ai_system_id" db:"ai_system_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`

	Roles []GovernanceRole `json:"roles,omitempty" db:"-"`
}

// HasActiveRole reports whether an active role of the given type is assigned.
func (g Governance) HasActiveRole(t RoleType) bool {
	for _, r := range g.Roles {
		if r.RoleType == t && r.IsActive {
			return true
		}
	}
	return false
}

type GovernanceRole struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	GovernanceID     uuid.UUID  `json:"governance_id" db:"governance_id"`
	RoleType         RoleType   `json:"role_type" db:"role_type"`
	PersonName       string     `json:"person_name" db:"person_name"`
	Email            string     `json:"email" db:"email"`
	Responsibilities string     `json:"responsibilities,omitempty" db:"responsibilities"`
	AppointedDate    *time.Time `json:"appointed_date,omitempty" db:"appointed_date"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	Position         int        `json:"position" db:"position"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}

type Incident struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	OrganizationID    uuid.UUID      `json:"organization_id" db:"organization_id"`
	AISystemID        uuid.UUID      `json:"ai_system_id" db:"ai_system_id"`
	IncidentNumber    string         `json:"incident_number" db:"incident_number"`
	Title             string         `json:"title" db:"title"`
	Description       string         `json:"description" db:"description"`
	Category          string         `json:"category" db:"category"`
	Severity          Severity       `json:"severity" db:"severity"`
	Status            IncidentStatus `json:"status" db:"status"`
	OccurredAt        time.Time      `json:"occurred_at" db:"occurred_at"`
	BusinessImpact    string         `json:"business_impact,omitempty" db:"business_impact"`
	ImmediateActions  string         `json:"immediate_actions,omitempty" db:"immediate_actions"`
	RootCause         string         `json:"root_cause,omitempty" db:"root_cause"`
	ResolutionSummary string         `json:"resolution_summary,omitempty" db:"resolution_summary"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty" db:"resolved_at"`
	ClosedAt          *time.Time     `json:"closed_at,omitempty" db:"closed_at"`
	ReportedBy        *uuid.UUID     `json:"reported_by,omitempty" db:"reported_by"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// TransitionTo moves the incident to status, stamping resolution and
// closure times once.
func (i *Incident) TransitionTo(status IncidentStatus, now time.Time) {
	i.Status = status
	switch status {
	case IncidentResolved:
		if i.ResolvedAt == nil {
			t := now
			i.ResolvedAt = &t
		}
	case IncidentClosed:
		if i.ResolvedAt == nil {
			t := now
			i.ResolvedAt = &t
		}
		if i.ClosedAt == nil {
			t := now
			i.ClosedAt = &t
		}
	}
}

// TechnicalDocumentation holds the Annex IV documentation of one system.
// CompletenessPercentage is derived from the section texts.
type TechnicalDocumentation struct {
	ID                     uuid.UUID  `json:"id" db:"id"`
	AISystemID             uuid.UUID  `json:"ai_system_id" db:"ai_system_id"`
	IntendedUse            string     `json:"intended_use" db:"intended_use"`
	ForeseeableMisuse      string     `json:"foreseeable_misuse" db:"foreseeable_misuse"`
	SystemArchitecture     string     `json:"system_architecture" db:"system_architecture"`
	TrainingData           string     `json:"training_data" db:"training_data"`
	ModelPerformance       string     `json:"model_performance" db:"model_performance"`
	ValidationTesting      string     `json:"validation_testing" db:"validation_testing"`
	HumanOversight         string     `json:"human_oversight" db:"human_oversight"`
	Cybersecurity          string     `json:"cybersecurity" db:"cybersecurity"`
	CompletenessPercentage float64    `json:"completeness_percentage" db:"completeness_percentage"`
	PreparedBy             string     `json:"prepared_by" db:"prepared_by"`
	ReviewedBy             string     `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ApprovedBy             string     `json:"approved_by,omitempty" db:"approved_by"`
	ApprovalDate           *time.Time `json:"approval_date,omitempty" db:"approval_date"`
	Version                string     `json:"version" db:"version"`
	VersionDate            time.Time  `json:"version_date" db:"version_date"`
	VersionNotes           string     `json:"version_notes,omitempty" db:"version_notes"`
	UpdatedBy              *uuid.UUID `json:"updated_by,omitempty" db:"updated_by"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at" db:"updated_at"`

	Versions []DocumentVersion `json:"versions,omitempty" db:"-"`
}

// InitialDocumentVersion is the version of newly created documentation.
const InitialDocumentVersion = "1.0"

// Section returns the text of one section.
func (d TechnicalDocumentation) Section(s DocumentationSection) string {
	switch s {
	case SectionIntendedUse:
		return d.IntendedUse
	case SectionForeseeableMisuse:
		return d.ForeseeableMisuse
	case SectionSystemArchitecture:
		return d.SystemArchitecture
	case SectionTrainingData:
		return d.TrainingData
	case SectionModelPerformance:
		return d.ModelPerformance
	case SectionValidationTesting:
		return d.ValidationTesting
	case SectionHumanOversight:
		return d.HumanOversight
	case SectionCybersecurity:
		return d.Cybersecurity
	default:
		return ""
	}
}

// SetSection replaces the text of one section. Unknown sections are ignored.
func (d *TechnicalDocumentation) SetSection(s DocumentationSection, text string) {
	switch s {
	case SectionIntendedUse:
		d.IntendedUse = text
	case SectionForeseeableMisuse:
		d.ForeseeableMisuse = text
	case SectionSystemArchitecture:
		d.SystemArchitecture = text
	case SectionTrainingData:
		d.TrainingData = text
	case SectionModelPerformance:
		d.ModelPerformance = text
	case SectionValidationTesting:
		d.ValidationTesting = text
	case SectionHumanOversight:
		d.HumanOversight = text
	case SectionCybersecurity:
		d.Cybersecurity = text
	}
}

// MissingSections lists the sections with no text, in document order.
func (d TechnicalDocumentation) MissingSections() []DocumentationSection {
	var missing []DocumentationSection
	for _, s := range DocumentationSections() {
		if strings.TrimSpace(d.Section(s)) == "" {
			missing = append(missing, s)
		}
	}
	return missing
}

// Completeness is the percentage of sections with non-blank text.
func (d TechnicalDocumentation) Completeness() float64 {
	all := len(DocumentationSections())
	return float64(all-len(d.MissingSections())) / float64(all) * 100
}

// Snapshot captures the section texts for a version record.
func (d TechnicalDocumentation) Snapshot() JSONB {
	snap := JSONB{}
	for _, s := range DocumentationSections() {
		snap[string(s)] = d.Section(s)
	}
	return snap
}

// NextDocumentVersion bumps the minor number of a "major.minor" version.
// Anything unparseable restarts from the initial version.
func NextDocumentVersion(current string) string {
	var major, minor int
	if _, err := fmt.Sscanf(current, "%d.%d", &major, &minor); err != nil {
		major, minor = 1, 0
	}
	return fmt.Sprintf("%d.%d", major, minor+1)
}

// DocumentVersion is an immutable snapshot of the documentation sections.
type DocumentVersion struct {
	ID                       uuid.UUID  `json:"id" db:"id"`
	TechnicalDocumentationID uuid.UUID  `json:"technical_documentation_id" db:"technical_documentation_id"`
	Version                  string     `json:"version" db:"version"`
	VersionNotes             string     `json:"version_notes" db:"version_notes"`
	Sections                 JSONB      `json:"sections" db:"sections"`
	SavedBy                  *uuid.UUID `json:"saved_by,omitempty" db:"saved_by"`
	VersionDate              time.Time  `json:"version_date" db:"version_date"`
}
