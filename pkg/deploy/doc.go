// Package deploy contains the core logic of cpdeploy: locating CircuitPython
// mass-storage devices, backing them up, replacing the project-managed files
// on the device and reporting what happened. It is used by the CLI layer but
// can also be embedded in other tooling that needs to push a CircuitPython
// project onto a board.
//
// All filesystem access goes through go-billy, so the same code runs against
// a mounted CIRCUITPY drive (osfs) and against in-memory devices in tests
// (memfs). Interaction is abstracted behind Prompter; the package never reads
// stdin itself.
package deploy
