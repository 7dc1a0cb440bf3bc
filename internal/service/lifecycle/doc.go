// Package lifecycle installs, upgrades, stops and uninstalls the worker
// service itself.
//
// An installed record always carries the hardened access descriptor, and
// its binary is only ever replaced by a newer one unless a forced install
// is requested. Replacement stops the worker first and tries a direct
// overwrite before moving the old binary aside.
package lifecycle
