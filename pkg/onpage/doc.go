// Package onpage is a client for schema-described catalog services.
//
// A Client loads the catalog schema once when it is created and then builds
// queries over the resources the schema declares:
//
//	client, err := onpage.New(ctx, onpage.Config{Endpoint: "acme", Token: token})
//	if err != nil {
//		return err
//	}
//
//	chapter, err := client.Query("capitoli").With("argomenti.prodotti").First(ctx)
//	if err != nil {
//		return err
//	}
//
//	topics, err := chapter.Rel(ctx, "argomenti") // already loaded, no request
//
// Relations named in With are embedded in the query response. Every other
// relation is fetched the first time Rel is called on a record and cached on
// that record afterwards.
//
// Request payloads are encoded as JSON unless they contain a FileUpload, in
// which case the whole payload is sent as a multipart form.
package onpage
