package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		execSudoPolicy(),
		sshHostKeyPolicy(),
	}
}

// execSudoPolicy flags local commands that run with sudo.
func execSudoPolicy() Policy {
	return Policy{
		Name:        "exec-sudo",
		Description: "Warns when a local command runs with sudo",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"exec", "privilege"},
		Rego: `package froyo.policies.exec_sudo

import rego.v1

deny contains violation if {
	input.call.action == "exec.run"
	input.call.config.sudo == true
	violation := {
		"message": sprintf("step %s.%s runs '%s' with sudo", [
			input.call.group,
			input.call.step,
			object.get(input.call.config, "command", ""),
		]),
		"severity": "warning",
	}
}
`,
	}
}

// sshHostKeyPolicy flags ssh actions that skip host key verification.
func sshHostKeyPolicy() Policy {
	return Policy{
		Name:        "ssh-host-key",
		Description: "Warns when an ssh action disables strict host key checking",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"ssh", "security"},
		Rego: `package froyo.policies.ssh_host_key

import rego.v1

deny contains violation if {
	startswith(input.call.action, "ssh.")
	input.call.config.strict_host_key_checking == false
	violation := {
		"message": sprintf("step %s.%s connects to %s without verifying its host key", [
			input.call.group,
			input.call.step,
			object.get(input.call.config, "host", "unknown host"),
		]),
		"severity": "warning",
	}
}
`,
	}
}
