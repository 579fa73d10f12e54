// Package daemon provides the long-running helpers of alertflow serve:
// config hot reload and notices about alertflow's own state.
package daemon
