// Package specialization resolves an agent configuration into effective
// instructions and an ordered sub-agent list.
package specialization

import (
	"github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"
)

// Profile is the built-in bundle behind one specialization tag.
type Profile struct {
	Name                domain.Specialization
	DisplayName         string
	Description         string
	SupportedProviders  []domain.CloudProvider
	Focus               string // bullet list rendered into the base instructions
	Expertise           string // extra instructions for the full profiles; empty otherwise
	SubAgents           []domain.SubAgent
	RequiredPermissions []string // rendered into the credential context
	Tags                []string
}

// Supports reports whether the profile lists p.
func (p Profile) Supports(provider domain.CloudProvider) bool {
	for _, sp := range p.SupportedProviders {
		if sp == provider {
			return true
		}
	}
	return false
}

func subAgent(name, description, instructions string, triggers ...string) domain.SubAgent {
	return domain.SubAgent{
		Name:              name,
		Description:       description,
		Instructions:      instructions,
		TriggerConditions: triggers,
		Enabled:           true,
		Priority:          1,
	}
}

var profiles = map[domain.Specialization]Profile{
	domain.SpecGeneral: {
		Name:               domain.SpecGeneral,
		DisplayName:        "General Cloud Engineer",
		Description:        "Balanced assistance across every cloud domain",
		SupportedProviders: domain.CloudProviders,
		Focus:              "Provide comprehensive assistance across all cloud domains with balanced expertise.",
		Tags:               []string{"general"},
	},
	domain.SpecTroubleshooter: {
		Name:               domain.SpecTroubleshooter,
		DisplayName:        "Cloud Troubleshooter",
		Description:        "Diagnoses and resolves complex cloud issues and performance problems",
		SupportedProviders: domain.CloudProviders,
		Focus: `- Systematically diagnose service issues using error analysis
- Check logs, metrics and service events for root cause analysis
- Identify and resolve misconfigurations and failures
- Provide step-by-step resolution with verification steps`,
		Expertise: `## Troubleshooting Method
1. Assess: gather symptoms, affected services, impact scope and severity.
2. Investigate: follow a structured workflow, isolate variables, test one hypothesis at a time.
3. Identify the root cause from logs, metrics and traces; correlate events with recent changes.
4. Remediate with the lowest-risk fix and verify it holds.
5. Record the cause and the preventive measures that would have caught it.

Common categories: connectivity, performance, availability, configuration, capacity, access.`,
		SubAgents: []domain.SubAgent{
			subAgent("log_analyzer", "Analyzes logs and traces to identify error patterns and root causes",
				"You analyze cloud service logs. Identify key error messages and codes, correlate timestamps across services, reconstruct the event timeline and call out anomalies.",
				"error logs", "stack traces", "log patterns"),
			subAgent("performance_diagnostician", "Diagnoses performance issues and resource bottlenecks",
				"You diagnose performance problems. Examine CPU, memory, disk and network utilization, locate the bottleneck and recommend concrete optimizations and alerts.",
				"high latency", "slow responses", "resource exhaustion"),
			subAgent("connectivity_specialist", "Troubleshoots network connectivity and routing issues",
				"You troubleshoot cloud networking. Check routing, DNS, security groups, firewall rules and load balancer health, and explain exactly where traffic is dropped.",
				"timeouts", "connection refused", "dns failures"),
			subAgent("service_debugger", "Debugs cloud service-specific issues and configurations",
				"You debug individual managed services. Compare the live configuration with the expected one, read service events and quotas, and propose a verified fix.",
				"service errors", "deployment failures"),
		},
		RequiredPermissions: []string{"logs:read", "monitoring:read", "tracing:read", "networking:read", "compute:read", "storage:read"},
		Tags:                []string{"troubleshooting", "debugging", "performance", "diagnostics", "incident-response"},
	},
	domain.SpecCostOptimizer: {
		Name:               domain.SpecCostOptimizer,
		DisplayName:        "Cloud Cost Optimizer",
		Description:        "Cloud cost analysis, resource optimization and financial governance",
		SupportedProviders: domain.CloudProviders,
		Focus: `- Analyze resource utilization and identify cost optimization opportunities
- Recommend right-sizing strategies and commitment purchases
- Implement cost monitoring and alerting
- Optimize storage classes and data lifecycle policies`,
		Expertise: `## Cost Review Method
Start from the largest line items. For each, compare provisioned capacity with observed utilization,
look for idle or orphaned resources, and check whether steady workloads are covered by commitments.
Quantify every recommendation as an estimated monthly saving and state the risk of applying it.`,
		SubAgents: []domain.SubAgent{
			subAgent("resource_analyzer", "Analyzes resource utilization and identifies rightsizing opportunities",
				"You analyze utilization metrics and recommend rightsizing. Report current size, observed peak and average, the proposed size and the estimated saving.",
				"oversized instances", "low utilization"),
			subAgent("waste_detector", "Identifies and catalogs unused, idle, or orphaned cloud resources",
				"You find waste: unattached volumes, idle load balancers, stale snapshots, unused IPs and stopped instances. List each with its monthly cost and a safe cleanup step.",
				"unused resources", "orphaned resources"),
			subAgent("commitment_advisor", "Analyzes Reserved Instance and commitment opportunities",
				"You evaluate reserved capacity and savings plans. Base recommendations on at least 30 days of usage and show break-even timing.",
				"reserved instances", "savings plans", "committed use"),
		},
		RequiredPermissions: []string{"billing:read", "cost:read", "monitoring:read", "resources:list", "recommendations:read"},
		Tags:                []string{"cost", "optimization", "financial", "governance", "efficiency"},
	},
	domain.SpecSecurityAuditor: {
		Name:               domain.SpecSecurityAuditor,
		DisplayName:        "Cloud Security Auditor",
		Description:        "Cloud security assessment, compliance monitoring and vulnerability management",
		SupportedProviders: domain.CloudProviders,
		Focus: `- Perform comprehensive security assessments and compliance audits
- Apply least privilege and security best practices
- Review encryption, access controls and network security
- Map findings to standards such as SOC 2, PCI DSS and HIPAA`,
		Expertise: `## Audit Method
Rate every finding Critical, High, Medium or Low. For each, name the affected resource, the evidence,
the risk and a concrete remediation. Never change configuration during an audit; report only.`,
		SubAgents: []domain.SubAgent{
			subAgent("iam_analyzer", "Analyzes identity and access management configurations for security risks",
				"You review identities, roles and policies. Flag wildcard permissions, unused credentials, missing MFA and cross-account trust that is broader than needed.",
				"iam", "permissions", "access review"),
			subAgent("network_security_assessor", "Evaluates network security configurations and access controls",
				"You assess network exposure. Find ingress open to the internet, flat networks, missing flow logs and unencrypted endpoints.",
				"security groups", "firewall", "public exposure"),
			subAgent("compliance_monitor", "Monitors and assesses compliance with security frameworks and regulations",
				"You map the environment against CIS, NIST, SOC 2 and ISO 27001 controls and report gaps with the control id.",
				"compliance", "audit", "framework"),
			subAgent("vulnerability_scanner", "Identifies and assesses security vulnerabilities in cloud resources",
				"You look for vulnerable images, outdated runtimes, unpatched hosts and exposed secrets, and rank them by exploitability.",
				"vulnerabilities", "cve", "patching"),
		},
		RequiredPermissions: []string{"security:read", "compliance:read", "iam:read", "config:read", "logging:read", "monitoring:read"},
		Tags:                []string{"security", "compliance", "audit", "vulnerability", "governance"},
	},
	domain.SpecArchitect: {
		Name:               domain.SpecArchitect,
		DisplayName:        "Cloud Solutions Architect",
		Description:        "Designs scalable, secure and cost-effective cloud architectures",
		SupportedProviders: domain.CloudProviders,
		Focus: `- Design scalable, reliable and secure cloud architectures
- Create detailed implementation plans with specific resources
- Consider cost optimization from the design phase
- Document architectural decisions and trade-offs`,
		Expertise: `## Design Method
Clarify functional and non-functional requirements first. Propose the simplest architecture that
meets them, review it against the provider's well-architected pillars, and record each significant
choice as a decision with its alternatives and consequences.`,
		SubAgents: []domain.SubAgent{
			subAgent("solution_designer", "Designs comprehensive cloud solution architectures",
				"You design end-to-end solutions. Produce the component list, data flow, scaling model and failure modes.",
				"new system", "architecture design"),
			subAgent("integration_specialist", "Designs integration patterns and API strategies",
				"You design integrations. Choose between synchronous APIs, queues and event streams and define contracts, retries and idempotency.",
				"integration", "api design", "events"),
			subAgent("infrastructure_planner", "Plans cloud infrastructure and deployment architectures",
				"You plan infrastructure. Lay out accounts or projects, networks, environments and the infrastructure-as-code structure.",
				"infrastructure", "landing zone", "networking"),
			subAgent("migration_strategist", "Designs cloud migration and modernization strategies",
				"You plan migrations. Classify each workload (rehost, replatform, refactor, retire) and sequence waves with rollback points.",
				"migration", "modernization"),
		},
		RequiredPermissions: []string{"architecture:read", "services:list", "pricing:read", "compliance:read", "documentation:write"},
		Tags:                []string{"architecture", "design", "solution", "planning", "strategy"},
	},
	domain.SpecComplianceAuditor: {
		Name:               domain.SpecComplianceAuditor,
		DisplayName:        "Compliance Auditor",
		Description:        "Regulatory compliance assessment and governance",
		SupportedProviders: domain.CloudProviders,
		Focus: `- Ensure compliance with regulatory standards and frameworks
- Implement governance policies and controls
- Perform compliance assessments and gap analysis
- Generate compliance reports and remediation plans`,
		Tags: []string{"compliance", "governance"},
	},
	domain.SpecPerformanceOptimizer: {
		Name:               domain.SpecPerformanceOptimizer,
		DisplayName:        "Performance Optimizer",
		Description:        "System performance analysis and tuning",
		SupportedProviders: domain.CloudProviders,
		Focus: `- Analyze system performance and identify bottlenecks
- Optimize resource allocation and scaling strategies
- Implement monitoring and alerting for performance metrics
- Recommend performance improvements`,
		Tags: []string{"performance", "scaling"},
	},
	domain.SpecDisasterRecovery: {
		Name:               domain.SpecDisasterRecovery,
		DisplayName:        "Disaster Recovery Planner",
		Description:        "Backup, restore and business continuity planning",
		SupportedProviders: domain.CloudProviders,
		Focus: `- Design and implement disaster recovery strategies
- Create backup and restore procedures
- Test recovery scenarios and update plans
- Ensure business continuity with minimal downtime`,
		Tags: []string{"disaster-recovery", "backup", "continuity"},
	},
}

// Lookup returns the profile for s.
func Lookup(s domain.Specialization) (Profile, bool) {
	p, ok := profiles[s]
	if !ok {
		return Profile{}, false
	}
	p.SubAgents = cloneSubAgents(p.SubAgents)
	return p, true
}

// Profiles returns every profile in domain.Specializations order.
func Profiles() []Profile {
	out := make([]Profile, 0, len(domain.Specializations))
	for _, s := range domain.Specializations {
		if p, ok := Lookup(s); ok {
			out = append(out, p)
		}
	}
	return out
}

// ForProvider returns the profiles that support provider.
func ForProvider(provider domain.CloudProvider) []Profile {
	var out []Profile
	for _, p := range Profiles() {
		if p.Supports(provider) {
			out = append(out, p)
		}
	}
	return out
}

func cloneSubAgents(in []domain.SubAgent) []domain.SubAgent {
	if in == nil {
		return nil
	}
	out := make([]domain.SubAgent, len(in))
	for i, sa := range in {
		out[i] = sa
		out[i].TriggerConditions = append([]string(nil), sa.TriggerConditions...)
		out[i].RequiredTools = append([]string(nil), sa.RequiredTools...)
	}
	return out
}
