// Package service describes the worker's SCM record: its name, run states,
// four-part file version, install actions and the hardened access
// descriptor every installed record must carry.
package service
