// Package policy provides Open Policy Agent (OPA) checks for call queues.
//
// Before a queue is confirmed, every enabled policy is evaluated once per
// call. A policy is a Rego module defining a "deny" set:
//
//	package froyo.policies.no_root_files
//
//	import rego.v1
//
//	deny contains violation if {
//		input.call.action == "file.write"
//		startswith(input.call.config.path, "/etc/")
//		violation := {"message": "files below /etc are managed elsewhere", "severity": "error"}
//	}
//
// The input document is:
//
//	{
//	  "call": {"index": 0, "group": "web", "step": "file", "action": "file.write", "config": {...}},
//	  "context": {"operation": "queue", "timestamp": "..."}
//	}
//
// where config is the fully resolved configuration the action will receive.
//
// # Severity
//
// Violations of severity "error" or "critical" deny the run. Lower
// severities are logged as warnings and the run continues. A deny element
// that is a plain string takes the policy's default severity.
//
// # Built-in Policies
//
//   - exec-sudo: warns when exec.run runs a command with sudo
//   - ssh-host-key: warns when an ssh action disables strict host key checking
//
// # Loading Policies
//
// Files and directories given to LoadPolicies are searched for .rego and
// .json files. A .rego file is named after its file; its leading comment
// block is the description and a "# severity: error" line sets its
// default severity. A .json file holds a Policy document.
package policy
