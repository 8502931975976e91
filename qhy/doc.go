/*Package qhy exposes control of QHYCCD cameras in Go.

A Camera is opened over a Library, the set of SDK calls it needs.  The native
binding is built with the qhyccd tag and links libqhyccd; the Simulator needs
nothing and is used by the tests and the -simulate flag of the servers.

	lib := qhy.NewSimulator()
	cam, err := qhy.Open(lib, 0)
	if err != nil {
		log.Fatal(err)
	}
	defer cam.Close()
	cam.Params().Write(qhy.ParamExposure, 50000) // us
	img, err := cam.Capture(context.Background())

Every parameter write is validated against the parameter's domain before
any SDK call is made, and the Camera tracks its lifecycle state so that a
write during an exposure, or a second exposure, is refused rather than
passed to the SDK.

Status codes from the SDK are classified by Translate.  Failures become
*DeviceError values that keep the native code and the name of the SDK call.
*/
package qhy
