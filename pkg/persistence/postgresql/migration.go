package postgresql

// migrations returns the versioned schema for the lifecycle core.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS org_users (
				id VARCHAR(64) PRIMARY KEY,
				organization_id VARCHAR(64) NOT NULL,
				email VARCHAR(255) NOT NULL,
				first_name VARCHAR(255) NOT NULL DEFAULT '',
				last_name VARCHAR(255) NOT NULL DEFAULT '',
				role VARCHAR(32) NOT NULL DEFAULT 'member',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_org_users_org ON org_users (organization_id);

			CREATE TABLE IF NOT EXISTS user_requests (
				id VARCHAR(64) PRIMARY KEY,
				organization_id VARCHAR(64) NOT NULL,
				request_type VARCHAR(16) NOT NULL,
				email VARCHAR(255) NOT NULL,
				first_name VARCHAR(255) NOT NULL,
				last_name VARCHAR(255) NOT NULL,
				personal_email VARCHAR(255),
				user_id VARCHAR(64),
				start_date TIMESTAMP WITH TIME ZONE,
				end_date TIMESTAMP WITH TIME ZONE,
				template_id VARCHAR(64),
				job_title VARCHAR(255),
				department_id VARCHAR(64),
				manager_id VARCHAR(64),
				location VARCHAR(255),
				metadata JSONB,
				status VARCHAR(16) NOT NULL DEFAULT 'pending',
				requested_by VARCHAR(64) NOT NULL,
				approved_by VARCHAR(64),
				approved_at TIMESTAMP WITH TIME ZONE,
				rejection_reason TEXT,
				tasks_total INTEGER NOT NULL DEFAULT 0,
				tasks_completed INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_user_requests_org_status ON user_requests (organization_id, status);
			CREATE INDEX IF NOT EXISTS idx_user_requests_org_created ON user_requests (organization_id, created_at DESC);

			CREATE TABLE IF NOT EXISTS lifecycle_tasks (
				id VARCHAR(64) PRIMARY KEY,
				organization_id VARCHAR(64) NOT NULL,
				request_id VARCHAR(64) REFERENCES user_requests (id),
				user_id VARCHAR(64),
				title VARCHAR(255) NOT NULL,
				description TEXT,
				category VARCHAR(64),
				assignee_type VARCHAR(16) NOT NULL,
				assignee_id VARCHAR(64),
				assignee_role VARCHAR(32),
				trigger_type VARCHAR(32) NOT NULL DEFAULT 'on_approval',
				trigger_offset_days INTEGER NOT NULL DEFAULT 0,
				due_date TIMESTAMP WITH TIME ZONE,
				status VARCHAR(16) NOT NULL DEFAULT 'pending',
				completed_at TIMESTAMP WITH TIME ZONE,
				completed_by VARCHAR(64),
				completion_notes TEXT,
				action_type VARCHAR(64),
				action_config JSONB,
				sequence_order INTEGER NOT NULL DEFAULT 0,
				depends_on_task_id VARCHAR(64),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_lifecycle_tasks_org_status ON lifecycle_tasks (organization_id, status);
			CREATE INDEX IF NOT EXISTS idx_lifecycle_tasks_request ON lifecycle_tasks (request_id);
			CREATE INDEX IF NOT EXISTS idx_lifecycle_tasks_depends_on ON lifecycle_tasks (depends_on_task_id);
			CREATE INDEX IF NOT EXISTS idx_lifecycle_tasks_assignee ON lifecycle_tasks (organization_id, assignee_id);

			CREATE TABLE IF NOT EXISTS audit_logs (
				id VARCHAR(64) PRIMARY KEY,
				organization_id VARCHAR(64) NOT NULL,
				user_id VARCHAR(64),
				action VARCHAR(64) NOT NULL,
				details JSONB,
				performed_by VARCHAR(64) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_audit_logs_org_created ON audit_logs (organization_id, created_at DESC);
		`,
	}
}
