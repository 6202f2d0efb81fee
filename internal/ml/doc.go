// Package ml loads the trained tumor classifier and serves predictions from it.
//
// An Engine validates caller input against the feature registry, scales it with
// the fitted scaler and returns a Malignant or Benign diagnosis with per-class
// probabilities. Artifacts are read once by a Store; the Engine itself holds no
// mutable state and is safe for concurrent use.
package ml
