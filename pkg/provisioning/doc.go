// Package provisioning manages the tenant lifecycle.
//
// Service.Create merges the built-in defaults, an optional template and
// the request into a pending_setup tenant, stores it, creates a
// provisioning Record and enqueues a ProvisionTenant job. The job handler
// (Service.Handler, registered on a queue.Worker) runs the step Plan:
//
//	validate_config -> setup_database -> setup_storage -> setup_cache ->
//	apply_settings -> setup_monitoring -> validate_deployment
//
// Steps run sequentially with per-step retries. When every step succeeds
// the tenant becomes active. Step kinds form a closed set; executors
// implement StepVisitor.
//
// Update and Delete clear the tenant Context cache so requests observe
// the change immediately on this instance.
package provisioning
