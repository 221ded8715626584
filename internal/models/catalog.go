package models

// RequirementTemplate seeds a requirement when a gap assessment is created
// without an explicit requirement list.
type RequirementTemplate struct {
	Category            RequirementCategory `json:"category"`
	Title               string              `json:"title"`
	Description         string              `json:"description"`
	RegulatoryReference string              `json:"regulatory_reference"`
	Priority            Priority            `json:"priority"`
}

var highRiskCatalog = []RequirementTemplate{
	{RequirementRiskManagement, "Risk Management System", "Establish, implement, document and maintain a risk management system", "Article 9(1)", PriorityCritical},
	{RequirementRiskManagement, "Continuous Risk Assessment", "Continuous iterative process run throughout the AI system lifecycle", "Article 9(2)", PriorityHigh},
	{RequirementRiskManagement, "Risk Identification", "Identification and analysis of known and foreseeable risks", "Article 9(2)(a)", PriorityCritical},

	{RequirementDataGovernance, "Training Data Governance", "Data governance practices for training, validation and testing datasets", "Article 10(2)", PriorityCritical},
	{RequirementDataGovernance, "Data Quality", "Ensure data is relevant, representative, free of errors and complete", "Article 10(3)", PriorityHigh},
	{RequirementDataGovernance, "Data Examination", "Examine datasets for possible biases and identify data gaps", "Article 10(2)(f)", PriorityHigh},

	{RequirementTechnicalDocumentation, "Technical Documentation", "Draw up technical documentation before placing on market", "Article 11(1)", PriorityCritical},
	{RequirementTechnicalDocumentation, "System Description", "General description of AI system including intended purpose", "Annex IV(1)", PriorityHigh},
	{RequirementTechnicalDocumentation, "Development Process", "Detailed description of system development process", "Annex IV(2)", PriorityMedium},

	{RequirementRecordKeeping, "Automatic Logging", "Technical capability for automatic recording of events (logs)", "Article 12(1)", PriorityCritical},
	{RequirementRecordKeeping, "Log Retention", "Keep logs for period appropriate to intended purpose, minimum 6 months", "Article 12(1)", PriorityHigh},
	{RequirementRecordKeeping, "Cybersecurity Logging", "Logs protected by appropriate cybersecurity measures", "Article 12(1)", PriorityHigh},

	{RequirementTransparency, "User Instructions", "Provide clear and adequate instructions for use", "Article 13(1)", PriorityCritical},
	{RequirementTransparency, "System Characteristics", "Information on AI system characteristics, capabilities and limitations", "Article 13(3)(a)", PriorityHigh},
	{RequirementTransparency, "Performance Information", "Information on level of accuracy, robustness and cybersecurity", "Article 13(3)(b)", PriorityMedium},

	{RequirementHumanOversight, "Human Oversight Measures", "Design system to enable effective oversight by natural persons", "Article 14(1)", PriorityCritical},
	{RequirementHumanOversight, "Oversight Capabilities", "Provide measures to fully understand system outputs", "Article 14(4)(a)", PriorityHigh},
	{RequirementHumanOversight, "Intervention Capability", "Ability to intervene or interrupt system operation", "Article 14(4)(c)", PriorityCritical},

	{RequirementAccuracyRobustness, "Accuracy Level", "Achieve appropriate level of accuracy as per intended purpose", "Article 15(1)", PriorityCritical},
	{RequirementAccuracyRobustness, "Robustness", "System resilient against errors, faults, and inconsistencies", "Article 15(3)", PriorityHigh},
	{RequirementAccuracyRobustness, "Technical Resilience", "Resilience against attempts to alter use or performance", "Article 15(4)", PriorityHigh},

	{RequirementCybersecurity, "Cybersecurity Measures", "Resilient against unauthorized third parties", "Article 15(1)", PriorityCritical},
	{RequirementCybersecurity, "Security by Design", "Cybersecurity measures integrated into system design", "Article 15(1)", PriorityHigh},
	{RequirementCybersecurity, "Data Protection", "Protection against data poisoning and model manipulation", "Article 15(4)", PriorityCritical},
}

// DefaultRequirements returns a copy of the high-risk requirement catalog.
func DefaultRequirements() []RequirementTemplate {
	out := make([]RequirementTemplate, len(highRiskCatalog))
	copy(out, highRiskCatalog)
	return out
}

// HarmonizedStandards lists the standards referenced on issued certificates.
func HarmonizedStandards() []string {
	return []string{
		"ISO/IEC 42001:2023 - AI Management System",
		"ISO/IEC 23894:2023 - AI Risk Management",
		"ISO/IEC 27001:2022 - Information Security Management",
		"ISO/IEC 27701:2019 - Privacy Information Management",
	}
}
