package models

type DeploymentStatus string

const (
	DeploymentDevelopment    DeploymentStatus = "DEVELOPMENT"
	DeploymentTesting        DeploymentStatus = "TESTING"
	DeploymentStaging        DeploymentStatus = "STAGING"
	DeploymentProduction     DeploymentStatus = "PRODUCTION"
	DeploymentMaintenance    DeploymentStatus = "MAINTENANCE"
	DeploymentDecommissioned DeploymentStatus = "DECOMMISSIONED"
)

func DeploymentStatuses() []DeploymentStatus {
	return []DeploymentStatus{
		DeploymentDevelopment, DeploymentTesting, DeploymentStaging,
		DeploymentProduction, DeploymentMaintenance, DeploymentDecommissioned,
	}
}

func (d DeploymentStatus) Valid() bool {
	switch d {
	case DeploymentDevelopment, DeploymentTesting, DeploymentStaging,
		DeploymentProduction, DeploymentMaintenance, DeploymentDecommissioned:
		return true
	}
	return false
}

func (d DeploymentStatus) Label() string {
	switch d {
	case DeploymentDevelopment:
		return "Development"
	case DeploymentTesting:
		return "Testing"
	case DeploymentStaging:
		return "Staging"
	case DeploymentProduction:
		return "Production"
	case DeploymentMaintenance:
		return "Maintenance"
	case DeploymentDecommissioned:
		return "Decommissioned"
	}
	return string(d)
}

// RiskCategory is the EU AI Act classification tier of a system.
type RiskCategory string

const (
	RiskCategoryProhibited RiskCategory = "PROHIBITED"
	RiskCategoryHigh       RiskCategory = "HIGH_RISK"
	RiskCategoryLimited    RiskCategory = "LIMITED_RISK"
	RiskCategoryMinimal    RiskCategory = "MINIMAL_RISK"
)

func RiskCategories() []RiskCategory {
	return []RiskCategory{RiskCategoryProhibited, RiskCategoryHigh, RiskCategoryLimited, RiskCategoryMinimal}
}

func (c RiskCategory) Valid() bool {
	switch c {
	case RiskCategoryProhibited, RiskCategoryHigh, RiskCategoryLimited, RiskCategoryMinimal:
		return true
	}
	return false
}

func (c RiskCategory) Title() string {
	switch c {
	case RiskCategoryProhibited:
		return "Prohibited"
	case RiskCategoryHigh:
		return "High Risk"
	case RiskCategoryLimited:
		return "Limited Risk"
	case RiskCategoryMinimal:
		return "Minimal Risk"
	}
	return string(c)
}

// RequirementCategory groups gap-assessment requirements by the article
// of the regulation they come from.
type RequirementCategory string

const (
	RequirementRiskManagement         RequirementCategory = "RISK_MANAGEMENT"
	RequirementDataGovernance         RequirementCategory = "DATA_GOVERNANCE"
	RequirementTechnicalDocumentation RequirementCategory = "TECHNICAL_DOCUMENTATION"
	RequirementRecordKeeping          RequirementCategory = "RECORD_KEEPING"
	RequirementTransparency           RequirementCategory = "TRANSPARENCY"
	RequirementHumanOversight         RequirementCategory = "HUMAN_OVERSIGHT"
	RequirementAccuracyRobustness     RequirementCategory = "ACCURACY_ROBUSTNESS"
	RequirementCybersecurity          RequirementCategory = "CYBERSECURITY"
)

// RequirementCategories returns every category in reporting order.
func RequirementCategories() []RequirementCategory {
	return []RequirementCategory{
		RequirementRiskManagement,
		RequirementDataGovernance,
		RequirementTechnicalDocumentation,
		RequirementRecordKeeping,
		RequirementTransparency,
		RequirementHumanOversight,
		RequirementAccuracyRobustness,
		RequirementCybersecurity,
	}
}

func (c RequirementCategory) Valid() bool {
	switch c {
	case RequirementRiskManagement, RequirementDataGovernance, RequirementTechnicalDocumentation,
		RequirementRecordKeeping, RequirementTransparency, RequirementHumanOversight,
		RequirementAccuracyRobustness, RequirementCybersecurity:
		return true
	}
	return false
}

func (c RequirementCategory) Title() string {
	switch c {
	case RequirementRiskManagement:
		return "Risk Management System"
	case RequirementDataGovernance:
		return "Data Governance & Quality"
	case RequirementTechnicalDocumentation:
		return "Technical Documentation"
	case RequirementRecordKeeping:
		return "Record-Keeping & Logging"
	case RequirementTransparency:
		return "Transparency & User Information"
	case RequirementHumanOversight:
		return "Human Oversight & Control"
	case RequirementAccuracyRobustness:
		return "Accuracy, Robustness & Cybersecurity"
	case RequirementCybersecurity:
		return "Cybersecurity Measures"
	}
	return string(c)
}

func (c RequirementCategory) Article() string {
	switch c {
	case RequirementRiskManagement:
		return "Article 9"
	case RequirementDataGovernance:
		return "Article 10"
	case RequirementTechnicalDocumentation:
		return "Article 11"
	case RequirementRecordKeeping:
		return "Article 12"
	case RequirementTransparency:
		return "Article 13"
	case RequirementHumanOversight:
		return "Article 14"
	case RequirementAccuracyRobustness, RequirementCybersecurity:
		return "Article 15"
	}
	return ""
}

type RequirementStatus string

const (
	StatusNotStarted    RequirementStatus = "NOT_STARTED"
	StatusInProgress    RequirementStatus = "IN_PROGRESS"
	StatusImplemented   RequirementStatus = "IMPLEMENTED"
	StatusNotApplicable RequirementStatus = "NOT_APPLICABLE"
)

func RequirementStatuses() []RequirementStatus {
	return []RequirementStatus{StatusNotStarted, StatusInProgress, StatusImplemented, StatusNotApplicable}
}

func (s RequirementStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusImplemented, StatusNotApplicable:
		return true
	}
	return false
}

func (s RequirementStatus) Label() string {
	switch s {
	case StatusNotStarted:
		return "Not Started"
	case StatusInProgress:
		return "In Progress"
	case StatusImplemented:
		return "Implemented"
	case StatusNotApplicable:
		return "Not Applicable"
	}
	return string(s)
}

// Priority is shared by requirements and used for ordering work.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

func Priorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type EvidenceType string

const (
	EvidenceText EvidenceType = "TEXT"
	EvidenceFile EvidenceType = "FILE"
	EvidenceLink EvidenceType = "LINK"
)

func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceText, EvidenceFile, EvidenceLink:
		return true
	}
	return false
}

type RiskType string

const (
	RiskTypeBias          RiskType = "BIAS"
	RiskTypeSafety        RiskType = "SAFETY"
	RiskTypeMisuse        RiskType = "MISUSE"
	RiskTypeTransparency  RiskType = "TRANSPARENCY"
	RiskTypePrivacy       RiskType = "PRIVACY"
	RiskTypeCybersecurity RiskType = "CYBERSECURITY"
	RiskTypeOther         RiskType = "OTHER"
)

func RiskTypes() []RiskType {
	return []RiskType{
		RiskTypeBias, RiskTypeSafety, RiskTypeMisuse, RiskTypeTransparency,
		RiskTypePrivacy, RiskTypeCybersecurity, RiskTypeOther,
	}
}

func (t RiskType) Valid() bool {
	switch t {
	case RiskTypeBias, RiskTypeSafety, RiskTypeMisuse, RiskTypeTransparency,
		RiskTypePrivacy, RiskTypeCybersecurity, RiskTypeOther:
		return true
	}
	return false
}

func (t RiskType) Title() string {
	switch t {
	case RiskTypeBias:
		return "Bias & Discrimination"
	case RiskTypeSafety:
		return "Safety"
	case RiskTypeMisuse:
		return "Misuse"
	case RiskTypeTransparency:
		return "Transparency"
	case RiskTypePrivacy:
		return "Privacy"
	case RiskTypeCybersecurity:
		return "Cybersecurity"
	case RiskTypeOther:
		return "Other"
	}
	return string(t)
}

// RiskLevel is the three-tier label derived from a likelihood x impact score.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh}
}

func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh:
		return true
	}
	return false
}

func (l RiskLevel) Label() string {
	switch l {
	case RiskLevelLow:
		return "Low"
	case RiskLevelMedium:
		return "Medium"
	case RiskLevelHigh:
		return "High"
	}
	return string(l)
}

// Badge returns the hex color used when the level is rendered in documents.
func (l RiskLevel) Badge() string {
	switch l {
	case RiskLevelLow:
		return "16A34A"
	case RiskLevelMedium:
		return "D97706"
	case RiskLevelHigh:
		return "DC2626"
	}
	return "6B7280"
}

type TreatmentDecision string

const (
	TreatmentAccept   TreatmentDecision = "ACCEPT"
	TreatmentMitigate TreatmentDecision = "MITIGATE"
	TreatmentTransfer TreatmentDecision = "TRANSFER"
	TreatmentAvoid    TreatmentDecision = "AVOID"
)

func (t TreatmentDecision) Valid() bool {
	switch t {
	case TreatmentAccept, TreatmentMitigate, TreatmentTransfer, TreatmentAvoid:
		return true
	}
	return false
}

type ActionStatus string

const (
	ActionPlanned    ActionStatus = "PLANNED"
	ActionInProgress ActionStatus = "IN_PROGRESS"
	ActionCompleted  ActionStatus = "COMPLETED"
	ActionCancelled  ActionStatus = "CANCELLED"
)

func (s ActionStatus) Valid() bool {
	switch s {
	case ActionPlanned, ActionInProgress, ActionCompleted, ActionCancelled:
		return true
	}
	return false
}

// RoleType is a governance responsibility assigned to a person for a system.
type RoleType string

const (
	RoleSystemOwner           RoleType = "SYSTEM_OWNER"
	RoleRiskOwner             RoleType = "RISK_OWNER"
	RoleHumanOversight        RoleType = "HUMAN_OVERSIGHT"
	RoleDataProtectionOfficer RoleType = "DATA_PROTECTION_OFFICER"
	RoleTechnicalLead         RoleType = "TECHNICAL_LEAD"
	RoleComplianceOfficer     RoleType = "COMPLIANCE_OFFICER"
)

func RoleTypes() []RoleType {
	return []RoleType{
		RoleSystemOwner, RoleRiskOwner, RoleHumanOversight,
		RoleDataProtectionOfficer, RoleTechnicalLead, RoleComplianceOfficer,
	}
}

func (r RoleType) Valid() bool {
	switch r {
	case RoleSystemOwner, RoleRiskOwner, RoleHumanOversight,
		RoleDataProtectionOfficer, RoleTechnicalLead, RoleComplianceOfficer:
		return true
	}
	return false
}

func (r RoleType) Title() string {
	switch r {
	case RoleSystemOwner:
		return "System Owner"
	case RoleRiskOwner:
		return "Risk Owner"
	case RoleHumanOversight:
		return "Human Oversight Officer"
	case RoleDataProtectionOfficer:
		return "Data Protection Officer"
	case RoleTechnicalLead:
		return "Technical Lead"
	case RoleComplianceOfficer:
		return "Compliance Officer"
	}
	return string(r)
}

// Severity ranks incidents and notifications.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders severities from 1 (LOW) to 4 (CRITICAL); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "OPEN"
	IncidentInvestigating IncidentStatus = "INVESTIGATING"
	IncidentResolved      IncidentStatus = "RESOLVED"
	IncidentClosed        IncidentStatus = "CLOSED"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentOpen, IncidentInvestigating, IncidentResolved, IncidentClosed:
		return true
	}
	return false
}

// IsOpen reports whether the incident still needs attention.
func (s IncidentStatus) IsOpen() bool {
	return s == IncidentOpen || s == IncidentInvestigating
}

// DocumentationSection names one Annex IV section of a system's technical
// documentation.
type DocumentationSection string

const (
	SectionIntendedUse        DocumentationSection = "INTENDED_USE"
	SectionForeseeableMisuse  DocumentationSection = "FORESEEABLE_MISUSE"
	SectionSystemArchitecture DocumentationSection = "SYSTEM_ARCHITECTURE"
	SectionTrainingData       DocumentationSection = "TRAINING_DATA"
	SectionModelPerformance   DocumentationSection = "MODEL_PERFORMANCE"
	SectionValidationTesting  DocumentationSection = "VALIDATION_TESTING"
	SectionHumanOversight     DocumentationSection = "HUMAN_OVERSIGHT"
	SectionCybersecurity      DocumentationSection = "CYBERSECURITY"
)

// DocumentationSections returns every section in document order.
func DocumentationSections() []DocumentationSection {
	return []DocumentationSection{
		SectionIntendedUse,
		SectionForeseeableMisuse,
		SectionSystemArchitecture,
		SectionTrainingData,
		SectionModelPerformance,
		SectionValidationTesting,
		SectionHumanOversight,
		SectionCybersecurity,
	}
}

func (s DocumentationSection) Title() string {
	switch s {
	case SectionIntendedUse:
		return "Intended Purpose"
	case SectionForeseeableMisuse:
		return "Foreseeable Misuse"
	case SectionSystemArchitecture:
		return "System Architecture and Design"
	case SectionTrainingData:
		return "Training Data Governance"
	case SectionModelPerformance:
		return "Performance Metrics and Limitations"
	case SectionValidationTesting:
		return "Validation and Testing Procedures"
	case SectionHumanOversight:
		return "Human Oversight Mechanisms"
	case SectionCybersecurity:
		return "Cybersecurity Measures"
	default:
		return string(s)
	}
}

// Reference is the article of the regulation a section answers.
func (s DocumentationSection) Reference() string {
	switch s {
	case SectionIntendedUse:
		return "Article 11(1)(a), description of the intended purpose"
	case SectionForeseeableMisuse:
		return "Article 11(1)(a), reasonably foreseeable misuse"
	case SectionSystemArchitecture:
		return "Article 11(1)(b), system design and architecture"
	case SectionTrainingData:
		return "Article 10 and Article 11(1)(c), data and data governance"
	case SectionModelPerformance:
		return "Article 15, accuracy and robustness"
	case SectionValidationTesting:
		return "Article 9(2), testing within the risk management system"
	case SectionHumanOversight:
		return "Article 14, human oversight"
	case SectionCybersecurity:
		return "Article 15, cybersecurity"
	default:
		return ""
	}
}
