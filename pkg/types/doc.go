// Package types defines the contract shared between the streamwatch engine and
// the notification integrations it drives, including custom integrations
// compiled as Go plugins.
//
// An integration implements Integration (OnNext is mandatory). It may also
// implement ErrorHandler and Completer; missing capabilities are no-ops.
// Integrations are built by a Factory from the argument mapping declared in the
// notify section of the configuration file.
package types
