package sqlinline

const QSelectTemplate = `--sql a0858d67-5178-480b-905c-69d8b0fb75c4
select id, kind, prompt_template, coalesce(model, ''), cost, params
from templates
where id = $1::text
limit 1;
`

const QSelectAssetForOwner = `--sql db05bcd7-d3d3-4fb2-b67c-b45a6f538f9a
select id::text, owner_id, coalesce(job_id::text, ''), storage_key, content_type, bytes, created_at
from assets
where id = $1::uuid and owner_id = $2::text
limit 1;
`

const QInsertAsset = `--sql 64cdb48b-4c15-4e17-b25f-6258b7a97009
insert into assets (id, owner_id, job_id, storage_key, content_type, bytes, created_at)
values (gen_random_uuid(), $1::text, nullif($2::text, '')::uuid, $3::text, $4::text, $5::bigint, now())
returning id::text;
`
