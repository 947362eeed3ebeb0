package codescan

// Default imperative-mutation signatures. Each pattern matches a command
// invocation that changes cluster state outside the GitOps flow. The set is
// replaceable via the mutation_signatures config key.
var defaultMutationSignatures = []string{
	`\bkubectl\s+(?:--?\S+\s+)*apply\b`,
	`\bkubectl\s+(?:--?\S+\s+)*create\b`,
	`\bkubectl\s+(?:--?\S+\s+)*edit\b`,
	`\bkubectl\s+(?:--?\S+\s+)*patch\b`,
	`\bkubectl\s+(?:--?\S+\s+)*delete\b`,
	`\bkubectl\s+(?:--?\S+\s+)*replace\b`,
	`\bkubectl\s+(?:--?\S+\s+)*scale\b`,
	`\bkubectl\s+(?:--?\S+\s+)*autoscale\b`,
	`\bkubectl\s+(?:--?\S+\s+)*rollout\s+(?:restart|undo|pause|resume)\b`,
	`\bkubectl\s+(?:--?\S+\s+)*set\b`,
	`\bkubectl\s+(?:--?\S+\s+)*label\b`,
	`\bkubectl\s+(?:--?\S+\s+)*annotate\b`,
	`\bkubectl\s+(?:--?\S+\s+)*expose\b`,
	`\bkubectl\s+(?:--?\S+\s+)*run\b`,
	`\bkubectl\s+(?:--?\S+\s+)*drain\b`,
	`\bkubectl\s+(?:--?\S+\s+)*cordon\b`,
	`\bkubectl\s+(?:--?\S+\s+)*uncordon\b`,
	`\bkubectl\s+(?:--?\S+\s+)*taint\b`,
	`\bhelm\s+(?:--?\S+\s+)*(?:install|upgrade|uninstall|rollback)\b`,
}

// dryRunPattern exempts planning/validation invocations; a dry run never
// mutates cluster state.
const dryRunPattern = `--dry-run(?:=\S+)?\b`
